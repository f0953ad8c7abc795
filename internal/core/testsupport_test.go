package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"messenger-ws/internal/domain"
)

// fakeStore is an in-memory storage collaborator with injectable failures
// and call counters.
type fakeStore struct {
	mu sync.Mutex

	globalID      string
	conversations map[string]bool
	participants  map[string]map[string]bool // conversationID -> userIDs
	messages      []domain.Message
	touched       []string
	online        map[string]bool

	ensureCalls     int
	findGlobalCalls int

	createErr   error
	touchErr    error
	ensureErr   error
	presenceErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		globalID:      "global-conv",
		conversations: make(map[string]bool),
		participants:  make(map[string]map[string]bool),
		online:        make(map[string]bool),
	}
}

func (s *fakeStore) addConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[id] = true
}

func (s *fakeStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *fakeStore) TouchConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.touchErr != nil {
		return s.touchErr
	}
	if conversationID != s.globalID && !s.conversations[conversationID] {
		return domain.ErrConversationNotFound
	}
	s.touched = append(s.touched, conversationID)
	return nil
}

func (s *fakeStore) EnsureParticipant(ctx context.Context, userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureCalls++
	if s.ensureErr != nil {
		return s.ensureErr
	}
	if conversationID != s.globalID && !s.conversations[conversationID] {
		return domain.ErrConversationNotFound
	}
	if s.participants[conversationID] == nil {
		s.participants[conversationID] = make(map[string]bool)
	}
	s.participants[conversationID][userID] = true
	return nil
}

func (s *fakeStore) IsParticipant(ctx context.Context, userID, conversationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participants[conversationID][userID], nil
}

func (s *fakeStore) FindOrCreateGlobalConversation(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findGlobalCalls++
	return s.globalID, nil
}

func (s *fakeStore) SetUserOnline(ctx context.Context, userID string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presenceErr != nil {
		return s.presenceErr
	}
	s.online[userID] = online
	return nil
}

func (s *fakeStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *fakeStore) touchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.touched)
}

// fakeWriter collects every event written to a connection.
type fakeWriter struct {
	mu     sync.Mutex
	events []domain.ServerEvent
	fail   bool
}

func (w *fakeWriter) WriteJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errWriteFailed
	}
	w.events = append(w.events, v.(domain.ServerEvent))
	return nil
}

var errWriteFailed = errors.New("write failed")

func (w *fakeWriter) eventsOfType(eventType string) []domain.ServerEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []domain.ServerEvent
	for _, ev := range w.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// waitForEvents polls until the writer has seen at least n events of the
// given type or the timeout elapses.
func (w *fakeWriter) waitForEvents(t *testing.T, eventType string, n int, timeout time.Duration) []domain.ServerEvent {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if evs := w.eventsOfType(eventType); len(evs) >= n {
			return evs
		}
		time.Sleep(5 * time.Millisecond)
	}
	return w.eventsOfType(eventType)
}
