package core

import (
	"context"
	"log"
	"sync"

	"messenger-ws/internal/domain"
)

// Presence aggregates every user's live sessions into one online/offline
// signal. A user is online iff at least one session is active; the aggregate
// flips at most once per 0<->1 boundary no matter how many sessions churn.
type Presence struct {
	store domain.Storage

	// onChange is invoked outside the lock exactly once per boundary flip.
	onChange func(status domain.UserStatus)

	mu     sync.Mutex
	active map[string]map[string]bool // userID -> active session IDs
}

func NewPresence(store domain.Storage, onChange func(status domain.UserStatus)) *Presence {
	return &Presence{
		store:    store,
		onChange: onChange,
		active:   make(map[string]map[string]bool),
	}
}

// OnSessionStart records a session for the user. Only the first concurrent
// session persists and announces the online transition.
func (p *Presence) OnSessionStart(ctx context.Context, userID, sessionID string) {
	p.mu.Lock()
	sessions, ok := p.active[userID]
	if !ok {
		sessions = make(map[string]bool)
		p.active[userID] = sessions
	}
	wasEmpty := len(sessions) == 0
	sessions[sessionID] = true
	p.mu.Unlock()

	if !wasEmpty {
		return
	}
	p.persistAndAnnounce(ctx, userID, true)
}

// OnSessionEnd removes a session. Only closing the last session persists and
// announces the offline transition (with last-seen recorded by storage).
// Explicit go-offline signals and heartbeat timeouts both route through here.
func (p *Presence) OnSessionEnd(ctx context.Context, userID, sessionID string) {
	p.mu.Lock()
	sessions, ok := p.active[userID]
	if !ok || !sessions[sessionID] {
		p.mu.Unlock()
		return
	}
	delete(sessions, sessionID)
	nowEmpty := len(sessions) == 0
	if nowEmpty {
		delete(p.active, userID)
	}
	p.mu.Unlock()

	if !nowEmpty {
		return
	}
	p.persistAndAnnounce(ctx, userID, false)
}

// IsOnline reports the in-memory aggregate for a user.
func (p *Presence) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active[userID]) > 0
}

// ActiveSessionCount returns how many sessions the user currently has.
func (p *Presence) ActiveSessionCount(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active[userID])
}

// Presence persistence is best-effort: a storage failure is logged and never
// blocks the in-memory transition or the broadcast.
func (p *Presence) persistAndAnnounce(ctx context.Context, userID string, online bool) {
	if err := p.store.SetUserOnline(ctx, userID, online); err != nil {
		log.Printf("Failed to persist presence for user %s (online=%v): %v", userID, online, err)
	}
	if p.onChange != nil {
		p.onChange(domain.UserStatus{UserID: userID, Online: online})
	}
}
