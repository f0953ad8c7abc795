package core

import (
	"math/rand"
	"sync"
	"time"

	"messenger-ws/internal/domain"
)

// StatusDelays bounds the randomized simulated delivery windows.
type StatusDelays struct {
	DeliveredMin time.Duration
	DeliveredMax time.Duration
	ReadMin      time.Duration
	ReadMax      time.Duration
}

func DefaultStatusDelays() StatusDelays {
	return StatusDelays{
		DeliveredMin: 500 * time.Millisecond,
		DeliveredMax: 1500 * time.Millisecond,
		ReadMin:      2 * time.Second,
		ReadMax:      5 * time.Second,
	}
}

// StatusScheduler progresses each accepted message through the simulated
// sent -> delivered -> read lifecycle as deferred, cancellable transitions
// keyed by message ID. The read transition is always scheduled after the
// delivered one, so emitted statuses never regress or skip.
type StatusScheduler struct {
	delays StatusDelays

	mu      sync.Mutex
	pending map[string][]*time.Timer
	closed  bool
}

func NewStatusScheduler(delays StatusDelays) *StatusScheduler {
	return &StatusScheduler{
		delays:  delays,
		pending: make(map[string][]*time.Timer),
	}
}

// Schedule queues the delivered and read transitions for a message. Each
// fires emit exactly once unless cancelled first.
func (s *StatusScheduler) Schedule(messageID string, emit func(status domain.DeliveryStatus)) {
	deliveredIn := randomBetween(s.delays.DeliveredMin, s.delays.DeliveredMax)
	readIn := deliveredIn + randomBetween(s.delays.ReadMin, s.delays.ReadMax)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	delivered := time.AfterFunc(deliveredIn, func() {
		emit(domain.StatusDelivered)
	})
	read := time.AfterFunc(readIn, func() {
		defer s.forget(messageID)
		emit(domain.StatusRead)
	})
	s.pending[messageID] = []*time.Timer{delivered, read}
}

// Cancel stops any pending transitions for the message, typically because its
// room emptied or the owning connection was torn down.
func (s *StatusScheduler) Cancel(messageID string) {
	s.mu.Lock()
	timers := s.pending[messageID]
	delete(s.pending, messageID)
	s.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
}

// Close cancels every pending transition and rejects new schedules.
func (s *StatusScheduler) Close() {
	s.mu.Lock()
	all := s.pending
	s.pending = make(map[string][]*time.Timer)
	s.closed = true
	s.mu.Unlock()

	for _, timers := range all {
		for _, t := range timers {
			t.Stop()
		}
	}
}

// PendingCount reports how many messages still have transitions queued.
func (s *StatusScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *StatusScheduler) forget(messageID string) {
	s.mu.Lock()
	delete(s.pending, messageID)
	s.mu.Unlock()
}

func randomBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
