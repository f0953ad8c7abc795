package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Inbound event types (client -> server).
const (
	EventJoinGlobal  = "joinGlobal"
	EventJoinPrivate = "joinPrivate"
	EventSendMessage = "sendMessage"
	EventTyping      = "typing"
	EventStopTyping  = "stopTyping"
	EventGoOffline   = "goOffline"
	EventPing        = "ping"
)

// Outbound event types (server -> client).
const (
	EventConnected         = "connected"
	EventMessage           = "message"
	EventMessageStatus     = "messageStatus"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventUserStatus        = "userStatus"
	EventPong              = "pong"
	EventError             = "error"
)

// ErrorType classifies an error event on the wire.
type ErrorType string

const (
	ErrValidation ErrorType = "VALIDATION_ERROR"
	ErrAuth       ErrorType = "AUTH_ERROR"
	ErrJoin       ErrorType = "JOIN_ERROR"
	ErrMessage    ErrorType = "MESSAGE_ERROR"
)

// ClientEvent is the tagged envelope for every inbound event. Payloads are
// decoded and validated per type before they reach any component.
type ClientEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerEvent is the tagged envelope for every outbound event.
type ServerEvent struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewServerEvent(eventType string, data interface{}) ServerEvent {
	return ServerEvent{Type: eventType, Data: data, Timestamp: time.Now()}
}

// ErrorPayload is the data of an "error" event.
type ErrorPayload struct {
	Message string    `json:"message"`
	Type    ErrorType `json:"type"`
}

func (e *ErrorPayload) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func NewError(t ErrorType, message string) *ErrorPayload {
	return &ErrorPayload{Message: message, Type: t}
}

type JoinGlobalPayload struct {
	UserID string `json:"user_id" validate:"required"`
}

type JoinPrivatePayload struct {
	ConversationID string `json:"conversation_id" validate:"required"`
}

type SendMessagePayload struct {
	ConversationID string  `json:"conversation_id" validate:"required"`
	SenderID       string  `json:"sender_id" validate:"required"`
	Content        string  `json:"content" validate:"required"`
	Type           string  `json:"message_type,omitempty"`
	ReplyToID      *string `json:"reply_to_id,omitempty"`
	TempID         string  `json:"temp_id,omitempty"`
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	UserID         string `json:"user_id" validate:"required"`
	Name           string `json:"name,omitempty"`
}

type GoOfflinePayload struct {
	UserID string `json:"user_id" validate:"required"`
}

var validate = validator.New()

// DecodePayload unmarshals an event payload into dst and checks its schema.
// A malformed or incomplete payload is a validation error at the protocol
// boundary; nothing downstream sees it.
func DecodePayload(ev ClientEvent, dst interface{}) *ErrorPayload {
	if len(ev.Data) == 0 {
		return NewError(ErrValidation, fmt.Sprintf("%s: missing payload", ev.Type))
	}
	if err := json.Unmarshal(ev.Data, dst); err != nil {
		return NewError(ErrValidation, fmt.Sprintf("%s: malformed payload: %v", ev.Type, err))
	}
	if err := validate.Struct(dst); err != nil {
		return NewError(ErrValidation, fmt.Sprintf("%s: invalid payload: %v", ev.Type, err))
	}
	return nil
}
