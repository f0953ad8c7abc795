package core

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"messenger-ws/internal/domain"
)

// EventRelay forwards coordination events to external observers (the Kafka
// relay). Implementations are best-effort; failures must not affect local
// delivery.
type EventRelay interface {
	RelayMessage(ctx context.Context, msg domain.Message) error
	RelayStatus(ctx context.Context, st domain.MessageStatus) error
	RelayTyping(ctx context.Context, sig domain.TypingSignal, stopped bool) error
	RelayUserStatus(ctx context.Context, st domain.UserStatus) error
}

// Dispatcher validates inbound messages, persists them through the storage
// collaborator, fans them out to room subscribers, and schedules the
// asynchronous status progression.
type Dispatcher struct {
	registry  *Registry
	rooms     *RoomManager
	store     domain.Storage
	scheduler *StatusScheduler
	relay     EventRelay // optional
}

func NewDispatcher(registry *Registry, rooms *RoomManager, store domain.Storage, scheduler *StatusScheduler, relay EventRelay) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		rooms:     rooms,
		store:     store,
		scheduler: scheduler,
		relay:     relay,
	}
}

// Send accepts one message from a session. On success the conversation
// timestamp is bumped, the message persisted, a "message" event broadcast to
// every room subscriber (sender included, status "sent"), and the
// delivered/read transitions scheduled. Any failure is all-or-nothing: no
// message row survives a rejected send and no partial broadcast ever happens.
func (d *Dispatcher) Send(ctx context.Context, sessionID string, p domain.SendMessagePayload) (*domain.Message, *domain.ErrorPayload) {
	if strings.TrimSpace(p.Content) == "" {
		return nil, domain.NewError(domain.ErrValidation, "message content must not be empty")
	}
	if p.ConversationID == "" || p.SenderID == "" {
		return nil, domain.NewError(domain.ErrValidation, "conversation_id and sender_id are required")
	}

	// The claimed sender must be the user bound to the session.
	userID, ok := d.registry.SessionUser(sessionID)
	if !ok {
		return nil, domain.NewError(domain.ErrAuth, "session is not registered")
	}
	if userID != p.SenderID {
		return nil, domain.NewError(domain.ErrAuth, "sender_id does not match the session's user")
	}

	msgType := p.Type
	if msgType == "" {
		msgType = "text"
	}
	msg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: p.ConversationID,
		SenderID:       p.SenderID,
		Content:        p.Content,
		Type:           msgType,
		ReplyToID:      p.ReplyToID,
		TempID:         p.TempID,
		Status:         domain.StatusSent,
		CreatedAt:      time.Now(),
	}

	// The timestamp bump runs first: it fails for a conversation that does
	// not exist, so a rejected send never leaves a message row behind.
	if err := d.store.TouchConversation(ctx, p.ConversationID); err != nil {
		log.Printf("Failed to touch conversation %s: %v", p.ConversationID, err)
		return nil, domain.NewError(domain.ErrMessage, "failed to update conversation")
	}
	if err := d.store.CreateMessage(ctx, msg); err != nil {
		log.Printf("Failed to persist message for conversation %s: %v", p.ConversationID, err)
		return nil, domain.NewError(domain.ErrMessage, "failed to persist message")
	}

	room := d.rooms.RoomForConversation(p.ConversationID)
	sent := d.rooms.Broadcast(room, domain.NewServerEvent(domain.EventMessage, msg))
	log.Printf("Broadcast message %s to %d subscribers of %s", msg.ID, sent, room)

	if d.relay != nil {
		if err := d.relay.RelayMessage(ctx, *msg); err != nil {
			log.Printf("Failed to relay message %s: %v", msg.ID, err)
		}
	}

	d.scheduleProgression(msg, room)
	return msg, nil
}

// scheduleProgression queues the simulated delivered/read transitions. A
// transition firing into a room that has since emptied cancels the rest of
// the progression instead of emitting into a disconnected context.
func (d *Dispatcher) scheduleProgression(msg *domain.Message, room domain.RoomKey) {
	messageID := msg.ID
	tempID := msg.TempID
	conversationID := msg.ConversationID

	d.scheduler.Schedule(messageID, func(status domain.DeliveryStatus) {
		if len(d.rooms.BroadcastTargets(room)) == 0 {
			d.scheduler.Cancel(messageID)
			return
		}
		st := domain.MessageStatus{
			MessageID:      messageID,
			TempID:         tempID,
			ConversationID: conversationID,
			Status:         status,
		}
		d.rooms.Broadcast(room, domain.NewServerEvent(domain.EventMessageStatus, st))
		if d.relay != nil {
			if err := d.relay.RelayStatus(context.Background(), st); err != nil {
				log.Printf("Failed to relay status of message %s: %v", messageID, err)
			}
		}
	})
}
