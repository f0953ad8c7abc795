package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"messenger-ws/internal/domain"
)

type statusCollector struct {
	mu      sync.Mutex
	changes []domain.UserStatus
}

func (c *statusCollector) collect(st domain.UserStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, st)
}

func (c *statusCollector) all() []domain.UserStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.UserStatus(nil), c.changes...)
}

func TestPresence_BoundaryFlips(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newFakeStore()
	collector := &statusCollector{}
	presence := NewPresence(store, collector.collect)

	// First session flips the aggregate online
	presence.OnSessionStart(ctx, "user-a", "s1")
	req.Equal([]domain.UserStatus{{UserID: "user-a", Online: true}}, collector.all())
	req.True(store.online["user-a"])

	// A second tab emits nothing observable
	presence.OnSessionStart(ctx, "user-a", "s2")
	req.Len(collector.all(), 1)
	req.Equal(2, presence.ActiveSessionCount("user-a"))

	// Closing one of two sessions emits nothing
	presence.OnSessionEnd(ctx, "user-a", "s2")
	req.Len(collector.all(), 1)
	req.True(presence.IsOnline("user-a"))

	// Closing the last session flips the aggregate offline, exactly once
	presence.OnSessionEnd(ctx, "user-a", "s1")
	changes := collector.all()
	req.Len(changes, 2)
	req.Equal(domain.UserStatus{UserID: "user-a", Online: false}, changes[1])
	req.False(presence.IsOnline("user-a"))
	req.False(store.online["user-a"])
}

func TestPresence_DuplicateSessionStartEmitsOnce(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	collector := &statusCollector{}
	presence := NewPresence(newFakeStore(), collector.collect)

	presence.OnSessionStart(ctx, "user-a", "s1")
	presence.OnSessionStart(ctx, "user-a", "s1")

	req.Len(collector.all(), 1)
	req.Equal(1, presence.ActiveSessionCount("user-a"))
}

func TestPresence_EndOfUnknownSessionIsNoOp(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	collector := &statusCollector{}
	presence := NewPresence(newFakeStore(), collector.collect)

	presence.OnSessionEnd(ctx, "user-a", "never-started")
	req.Empty(collector.all())

	presence.OnSessionStart(ctx, "user-a", "s1")
	presence.OnSessionEnd(ctx, "user-a", "never-started")
	req.Len(collector.all(), 1)
	req.True(presence.IsOnline("user-a"))
}

func TestPresence_PersistenceFailureDoesNotBlockBroadcast(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newFakeStore()
	store.presenceErr = errors.New("database unavailable")
	collector := &statusCollector{}
	presence := NewPresence(store, collector.collect)

	presence.OnSessionStart(ctx, "user-a", "s1")

	// The in-memory transition and the broadcast both happened anyway
	req.True(presence.IsOnline("user-a"))
	req.Equal([]domain.UserStatus{{UserID: "user-a", Online: true}}, collector.all())
}

func TestPresence_IndependentUsers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	collector := &statusCollector{}
	presence := NewPresence(newFakeStore(), collector.collect)

	presence.OnSessionStart(ctx, "user-a", "s1")
	presence.OnSessionStart(ctx, "user-b", "s2")
	presence.OnSessionEnd(ctx, "user-a", "s1")

	changes := collector.all()
	req.Len(changes, 3)
	req.False(presence.IsOnline("user-a"))
	req.True(presence.IsOnline("user-b"))
}
