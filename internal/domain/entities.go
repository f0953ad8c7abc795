package domain

import "time"

// DeliveryStatus is the per-recipient lifecycle of a message. Transitions are
// monotonic: sent -> delivered -> read, never backwards.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// After reports whether s is a later lifecycle stage than other.
func (s DeliveryStatus) After(other DeliveryStatus) bool {
	return rank(s) > rank(other)
}

func rank(s DeliveryStatus) int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	}
	return -1
}

type RoomKind string

const (
	RoomGlobal       RoomKind = "global"
	RoomConversation RoomKind = "conversation"
)

// RoomKey identifies a broadcast scope: the single global room or one room
// per conversation. It is a membership key only, never persisted.
type RoomKey struct {
	Kind           RoomKind
	ConversationID string
}

func GlobalRoom() RoomKey {
	return RoomKey{Kind: RoomGlobal}
}

func ConversationRoom(conversationID string) RoomKey {
	return RoomKey{Kind: RoomConversation, ConversationID: conversationID}
}

func (k RoomKey) IsGlobal() bool {
	return k.Kind == RoomGlobal
}

func (k RoomKey) String() string {
	if k.Kind == RoomGlobal {
		return "global"
	}
	return "conversation:" + k.ConversationID
}

// Message is the wire and persistence shape of a chat message. Content is
// immutable once created; only its delivery status progresses.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	Content        string         `json:"content"`
	Type           string         `json:"type"`
	ReplyToID      *string        `json:"reply_to_id,omitempty"`
	TempID         string         `json:"temp_id,omitempty"`
	Status         DeliveryStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
}

// MessageStatus carries one delivery-status transition for a message.
type MessageStatus struct {
	MessageID      string         `json:"message_id"`
	TempID         string         `json:"temp_id,omitempty"`
	ConversationID string         `json:"conversation_id"`
	Status         DeliveryStatus `json:"status"`
}

// TypingSignal is ephemeral: relayed to room members and never stored.
type TypingSignal struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Name           string `json:"name,omitempty"`
}

// UserStatus is the aggregate presence of a user across all sessions.
type UserStatus struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}
