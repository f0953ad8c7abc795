// Package redis mirrors presence, room membership, and typing state into
// Redis so read-side services can query it. The mirror is best-effort: the
// in-memory registries remain authoritative.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const typingTTL = 30 * time.Second

// AddRoomMember records a session under the room's member hash.
func (m *MirrorClient) AddRoomMember(ctx context.Context, room, userID, sessionID string) error {
	key := fmt.Sprintf("room:%s:members", room)
	member := map[string]interface{}{
		"user_id":   userID,
		"joined_at": time.Now(),
	}

	memberJSON, err := json.Marshal(member)
	if err != nil {
		return err
	}
	return m.client.HSet(ctx, key, sessionID, memberJSON).Err()
}

// RemoveRoomMember drops a session from the room's member hash.
func (m *MirrorClient) RemoveRoomMember(ctx context.Context, room, sessionID string) error {
	key := fmt.Sprintf("room:%s:members", room)
	return m.client.HDel(ctx, key, sessionID).Err()
}

// RoomMembers returns the mirrored membership of a room keyed by session ID.
func (m *MirrorClient) RoomMembers(ctx context.Context, room string) (map[string]interface{}, error) {
	key := fmt.Sprintf("room:%s:members", room)
	entries, err := m.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	members := make(map[string]interface{})
	users := make(map[string]bool)
	for sessionID, memberJSON := range entries {
		var member map[string]interface{}
		if err := json.Unmarshal([]byte(memberJSON), &member); err != nil {
			continue
		}
		if userID, ok := member["user_id"].(string); ok {
			users[userID] = true
		}
		members[sessionID] = member
	}

	return map[string]interface{}{
		"members":        members,
		"total_sessions": len(members),
		"total_users":    len(users),
	}, nil
}

// SetUserPresence mirrors a user's aggregate online state.
func (m *MirrorClient) SetUserPresence(ctx context.Context, userID string, online bool) error {
	key := fmt.Sprintf("user:%s:presence", userID)
	presence := map[string]interface{}{
		"online":     online,
		"updated_at": time.Now(),
	}
	if !online {
		presence["last_seen_at"] = time.Now()
	}

	presenceJSON, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, key, presenceJSON, 0).Err()
}

// UserPresence reads a user's mirrored presence. A missing key means the
// user was never seen online by this mirror.
func (m *MirrorClient) UserPresence(ctx context.Context, userID string) (map[string]interface{}, error) {
	key := fmt.Sprintf("user:%s:presence", userID)
	presenceJSON, err := m.client.Get(ctx, key).Result()
	if err != nil {
		return map[string]interface{}{"online": false}, nil
	}

	var presence map[string]interface{}
	if err := json.Unmarshal([]byte(presenceJSON), &presence); err != nil {
		return nil, err
	}
	return presence, nil
}

// SetUserTyping records transient typing state under a TTL key, so a client
// that dies mid-typing ages out of the mirror on its own.
func (m *MirrorClient) SetUserTyping(ctx context.Context, conversationID, userID string, typing bool) error {
	key := fmt.Sprintf("conversation:%s:typing:%s", conversationID, userID)
	if typing {
		return m.client.Set(ctx, key, "true", typingTTL).Err()
	}
	return m.client.Del(ctx, key).Err()
}

// TypingUsers lists the users currently mirrored as typing in a conversation.
func (m *MirrorClient) TypingUsers(ctx context.Context, conversationID string) ([]string, error) {
	pattern := fmt.Sprintf("conversation:%s:typing:*", conversationID)
	keys, err := m.client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, err
	}

	prefix := fmt.Sprintf("conversation:%s:typing:", conversationID)
	var typingUsers []string
	for _, key := range keys {
		if len(key) > len(prefix) {
			typingUsers = append(typingUsers, key[len(prefix):])
		}
	}
	return typingUsers, nil
}

func (m *MirrorClient) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *MirrorClient) Close() error {
	return m.client.Close()
}
