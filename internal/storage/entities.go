package storage

import (
	"time"
)

// User mirrors the account table owned by the CRUD side of the system; this
// service only updates its presence columns.
type User struct {
	ID         string     `gorm:"primarykey;size:36" json:"id"`
	Name       string     `gorm:"size:100" json:"name"`
	Online     bool       `gorm:"not null;default:false" json:"online"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

const (
	ConversationGlobal  = "global"
	ConversationPrivate = "private"
)

// Conversation is a chat thread. Exactly one row has the global type.
type Conversation struct {
	ID            string    `gorm:"primarykey;size:36" json:"id"`
	Type          string    `gorm:"size:16;not null;index" json:"type"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Participant links a user to a conversation.
type Participant struct {
	ConversationID string    `gorm:"primarykey;size:36" json:"conversation_id"`
	UserID         string    `gorm:"primarykey;size:36" json:"user_id"`
	JoinedAt       time.Time `json:"joined_at"`
}

func (Participant) TableName() string {
	return "participants"
}

// MessageRecord is the persisted form of a chat message.
type MessageRecord struct {
	ID             string    `gorm:"primarykey;size:36" json:"id"`
	ConversationID string    `gorm:"size:36;not null;index" json:"conversation_id"`
	SenderID       string    `gorm:"size:36;not null" json:"sender_id"`
	Content        string    `gorm:"not null" json:"content"`
	Type           string    `gorm:"size:32;not null" json:"type"`
	ReplyToID      *string   `gorm:"size:36" json:"reply_to_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (MessageRecord) TableName() string {
	return "messages"
}
