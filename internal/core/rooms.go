package core

import (
	"context"
	"fmt"
	"log"
	"sync"

	"messenger-ws/internal/domain"
)

// RoomManager builds room keys, performs idempotent joins, and resolves room
// membership into broadcast targets. Room existence is resolved through the
// storage collaborator on every join, not from cached state that could drift.
type RoomManager struct {
	registry *Registry
	store    domain.Storage

	mu       sync.RWMutex
	globalID string // conversation backing the global room, cached for key resolution only
}

func NewRoomManager(registry *Registry, store domain.Storage) *RoomManager {
	return &RoomManager{registry: registry, store: store}
}

// JoinGlobal binds the session to the global room, resolving (find-or-create)
// the backing conversation through storage and persisting the user as a
// participant. A session already bound to the room skips storage entirely.
func (m *RoomManager) JoinGlobal(ctx context.Context, sessionID, userID string) (domain.RoomKey, error) {
	room := domain.GlobalRoom()
	if m.registry.IsMember(sessionID, room) {
		return room, nil
	}

	convID, err := m.store.FindOrCreateGlobalConversation(ctx)
	if err != nil {
		return room, fmt.Errorf("failed to resolve global conversation: %w", err)
	}
	m.setGlobalID(convID)

	if err := m.store.EnsureParticipant(ctx, userID, convID); err != nil {
		return room, fmt.Errorf("failed to join global room: %w", err)
	}

	added, err := m.registry.BindRoom(sessionID, room)
	if err != nil {
		return room, err
	}
	if added {
		log.Printf("Session %s joined global room (conversation %s)", sessionID, convID)
	}
	return room, nil
}

// JoinPrivate binds the session to the room of a conversation, persisting the
// user as a participant when not already one. Re-joins are no-ops and issue
// no storage calls. Joining a conversation that does not exist fails. An ID
// naming the conversation behind the global room binds under the global key,
// so those members share one broadcast scope with joinGlobal members.
func (m *RoomManager) JoinPrivate(ctx context.Context, sessionID, userID, conversationID string) (domain.RoomKey, error) {
	room := m.RoomForConversation(conversationID)
	if m.registry.IsMember(sessionID, room) {
		return room, nil
	}

	if err := m.store.EnsureParticipant(ctx, userID, conversationID); err != nil {
		return room, fmt.Errorf("failed to join conversation %s: %w", conversationID, err)
	}

	added, err := m.registry.BindRoom(sessionID, room)
	if err != nil {
		return room, err
	}
	if added {
		log.Printf("Session %s joined conversation room %s", sessionID, conversationID)
	}
	return room, nil
}

// RoomForConversation maps a conversation ID onto its broadcast room. The
// conversation backing the global room maps onto the global key.
func (m *RoomManager) RoomForConversation(conversationID string) domain.RoomKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.globalID != "" && conversationID == m.globalID {
		return domain.GlobalRoom()
	}
	return domain.ConversationRoom(conversationID)
}

func (m *RoomManager) setGlobalID(id string) {
	m.mu.Lock()
	m.globalID = id
	m.mu.Unlock()
}

// BroadcastTargets returns every connection currently subscribed to the room.
func (m *RoomManager) BroadcastTargets(room domain.RoomKey) []*Connection {
	return m.registry.ConnectionsInRoom(room)
}

// Broadcast sends one event to every subscriber of the room, self included.
func (m *RoomManager) Broadcast(room domain.RoomKey, ev domain.ServerEvent) int {
	return m.broadcast(room, "", ev)
}

// BroadcastExcept sends one event to every subscriber of the room except the
// named connection (used for typing relay, which never echoes the sender).
func (m *RoomManager) BroadcastExcept(room domain.RoomKey, exceptConnID string, ev domain.ServerEvent) int {
	return m.broadcast(room, exceptConnID, ev)
}

func (m *RoomManager) broadcast(room domain.RoomKey, exceptConnID string, ev domain.ServerEvent) int {
	targets := m.registry.ConnectionsInRoom(room)
	if len(targets) == 0 {
		return 0
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for _, conn := range targets {
		if conn.ID == exceptConnID {
			continue
		}
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			if err := c.Send(ev); err != nil {
				log.Printf("Failed to send %s event to connection %s: %v", ev.Type, c.ID, err)
				return
			}
			mu.Lock()
			success++
			mu.Unlock()
		}(conn)
	}
	wg.Wait()
	return success
}
