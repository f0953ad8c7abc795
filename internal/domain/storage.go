package domain

import (
	"context"
	"errors"
)

// ErrConversationNotFound is returned when an operation targets a
// conversation that was never persisted.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrUserNotFound is returned when a presence update targets an unknown user.
var ErrUserNotFound = errors.New("user not found")

// Storage is the persistence collaborator consumed by the coordination core.
// The core never owns schema or queries; it only issues these operations.
// Calls may block and are the core's only suspension points.
type Storage interface {
	// CreateMessage persists a new message. The caller assigns ID and
	// CreatedAt before the call.
	CreateMessage(ctx context.Context, msg *Message) error

	// TouchConversation bumps the conversation's last-activity timestamp.
	TouchConversation(ctx context.Context, conversationID string) error

	// EnsureParticipant adds the user as a participant of the conversation
	// if not already one. It fails with ErrConversationNotFound when the
	// conversation does not exist.
	EnsureParticipant(ctx context.Context, userID, conversationID string) error

	// IsParticipant reports whether the user is a persisted participant.
	IsParticipant(ctx context.Context, userID, conversationID string) (bool, error)

	// FindOrCreateGlobalConversation resolves the single global conversation,
	// creating it on first use, and returns its ID.
	FindOrCreateGlobalConversation(ctx context.Context) (string, error)

	// SetUserOnline persists the user's aggregate presence. Going offline
	// also records the last-seen timestamp.
	SetUserOnline(ctx context.Context, userID string, online bool) error
}
