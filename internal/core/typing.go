package core

import (
	"context"
	"log"

	"messenger-ws/internal/domain"
)

// TypingMirror records transient typing state in an external cache so other
// services can read it. Best-effort only.
type TypingMirror interface {
	SetUserTyping(ctx context.Context, conversationID, userID string, typing bool) error
}

// TypingNotifier relays ephemeral typing signals to the other members of a
// room. Nothing is persisted and nothing is tracked: a client that never
// sends stopTyping must time the indicator out itself.
type TypingNotifier struct {
	registry *Registry
	rooms    *RoomManager
	mirror   TypingMirror // optional
	relay    EventRelay   // optional
}

func NewTypingNotifier(registry *Registry, rooms *RoomManager, mirror TypingMirror, relay EventRelay) *TypingNotifier {
	return &TypingNotifier{registry: registry, rooms: rooms, mirror: mirror, relay: relay}
}

// Start relays a typing-start signal to the room, excluding the sender's own
// connection.
func (n *TypingNotifier) Start(ctx context.Context, sessionID string, sig domain.TypingSignal) {
	n.notify(ctx, sessionID, sig, false)
}

// Stop relays a typing-stop signal to the room, excluding the sender's own
// connection.
func (n *TypingNotifier) Stop(ctx context.Context, sessionID string, sig domain.TypingSignal) {
	n.notify(ctx, sessionID, sig, true)
}

func (n *TypingNotifier) notify(ctx context.Context, sessionID string, sig domain.TypingSignal, stopped bool) {
	eventType := domain.EventUserTyping
	if stopped {
		eventType = domain.EventUserStoppedTyping
	}

	exceptConnID := ""
	if conn, ok := n.registry.ConnectionForSession(sessionID); ok {
		exceptConnID = conn.ID
	}

	room := n.rooms.RoomForConversation(sig.ConversationID)
	n.rooms.BroadcastExcept(room, exceptConnID, domain.NewServerEvent(eventType, sig))

	if n.mirror != nil {
		if err := n.mirror.SetUserTyping(ctx, sig.ConversationID, sig.UserID, !stopped); err != nil {
			log.Printf("Failed to mirror typing state for user %s: %v", sig.UserID, err)
		}
	}
	if n.relay != nil {
		if err := n.relay.RelayTyping(ctx, sig, stopped); err != nil {
			log.Printf("Failed to relay typing signal for user %s: %v", sig.UserID, err)
		}
	}
}
