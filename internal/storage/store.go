// Package storage implements the persistence collaborator over gorm. The
// coordination core consumes it through the domain.Storage interface and
// never touches the schema directly.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"messenger-ws/internal/domain"
)

// Store provides the storage operations the coordination core needs.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the sqlite database at path and migrates the
// schema this service depends on.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&User{}, &Conversation{}, &Participant{}, &MessageRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing gorm handle (used by tests).
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateMessage persists a new message.
func (s *Store) CreateMessage(ctx context.Context, msg *domain.Message) error {
	record := &MessageRecord{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Type:           msg.Type,
		ReplyToID:      msg.ReplyToID,
		CreatedAt:      msg.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// TouchConversation bumps the conversation's last-activity timestamp.
func (s *Store) TouchConversation(ctx context.Context, conversationID string) error {
	result := s.db.WithContext(ctx).
		Model(&Conversation{}).
		Where("id = ?", conversationID).
		Update("last_message_at", time.Now())
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if result.RowsAffected == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

// EnsureParticipant adds the user to the conversation if not already a
// participant. The conversation must exist.
func (s *Store) EnsureParticipant(ctx context.Context, userID, conversationID string) error {
	var conv Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrConversationNotFound
		}
		return fmt.Errorf("failed to find conversation: %w", err)
	}

	participant := Participant{
		ConversationID: conversationID,
		UserID:         userID,
		JoinedAt:       time.Now(),
	}
	err := s.db.WithContext(ctx).
		Where(Participant{ConversationID: conversationID, UserID: userID}).
		FirstOrCreate(&participant).Error
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

// IsParticipant reports whether the user is persisted as a participant.
func (s *Store) IsParticipant(ctx context.Context, userID, conversationID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return count > 0, nil
}

// FindOrCreateGlobalConversation resolves the single global conversation,
// creating it on first use.
func (s *Store) FindOrCreateGlobalConversation(ctx context.Context) (string, error) {
	conv := Conversation{
		ID:            uuid.NewString(),
		Type:          ConversationGlobal,
		LastMessageAt: time.Now(),
	}
	err := s.db.WithContext(ctx).
		Where(Conversation{Type: ConversationGlobal}).
		Attrs(conv).
		FirstOrCreate(&conv).Error
	if err != nil {
		return "", fmt.Errorf("failed to resolve global conversation: %w", err)
	}
	return conv.ID, nil
}

// SetUserOnline persists the user's aggregate presence; going offline also
// records the last-seen timestamp.
func (s *Store) SetUserOnline(ctx context.Context, userID string, online bool) error {
	updates := map[string]interface{}{"online": online}
	if !online {
		updates["last_seen_at"] = time.Now()
	}
	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Updates(updates)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update user presence: %w", err)
	}
	if result.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// CreateConversation persists a private conversation (used by tests and by
// the REST surface of the wider system).
func (s *Store) CreateConversation(ctx context.Context, conversationID string) error {
	conv := &Conversation{
		ID:            conversationID,
		Type:          ConversationPrivate,
		LastMessageAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// CreateUser persists a user row (used by tests; account creation belongs to
// the CRUD side of the system).
func (s *Store) CreateUser(ctx context.Context, userID, name string) error {
	user := &User{ID: userID, Name: name}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUser loads one user row.
func (s *Store) FindUser(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}
