package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"messenger-ws/internal/domain"
)

func collectStatuses() (func(domain.DeliveryStatus), func() []domain.DeliveryStatus) {
	var mu sync.Mutex
	var seen []domain.DeliveryStatus
	emit := func(s domain.DeliveryStatus) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	}
	snapshot := func() []domain.DeliveryStatus {
		mu.Lock()
		defer mu.Unlock()
		return append([]domain.DeliveryStatus(nil), seen...)
	}
	return emit, snapshot
}

func TestScheduler_FiresInOrder(t *testing.T) {
	req := require.New(t)
	s := NewStatusScheduler(fastDelays())
	defer s.Close()

	emit, snapshot := collectStatuses()
	s.Schedule("msg-1", emit)
	req.Equal(1, s.PendingCount())

	req.Eventually(func() bool {
		return len(snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	req.Equal([]domain.DeliveryStatus{domain.StatusDelivered, domain.StatusRead}, snapshot())
	req.Zero(s.PendingCount())
}

func TestScheduler_CancelStopsPendingTransitions(t *testing.T) {
	req := require.New(t)
	s := NewStatusScheduler(StatusDelays{
		DeliveredMin: 50 * time.Millisecond,
		DeliveredMax: 60 * time.Millisecond,
		ReadMin:      50 * time.Millisecond,
		ReadMax:      60 * time.Millisecond,
	})
	defer s.Close()

	emit, snapshot := collectStatuses()
	s.Schedule("msg-1", emit)
	s.Cancel("msg-1")
	req.Zero(s.PendingCount())

	time.Sleep(150 * time.Millisecond)
	req.Empty(snapshot())
}

func TestScheduler_CloseRejectsNewSchedules(t *testing.T) {
	req := require.New(t)
	s := NewStatusScheduler(fastDelays())
	s.Close()

	emit, snapshot := collectStatuses()
	s.Schedule("msg-1", emit)
	req.Zero(s.PendingCount())

	time.Sleep(100 * time.Millisecond)
	req.Empty(snapshot())
}

func TestScheduler_IndependentMessages(t *testing.T) {
	req := require.New(t)
	s := NewStatusScheduler(StatusDelays{
		DeliveredMin: 40 * time.Millisecond,
		DeliveredMax: 50 * time.Millisecond,
		ReadMin:      40 * time.Millisecond,
		ReadMax:      50 * time.Millisecond,
	})
	defer s.Close()

	emitA, snapshotA := collectStatuses()
	emitB, snapshotB := collectStatuses()
	s.Schedule("msg-a", emitA)
	s.Schedule("msg-b", emitB)
	s.Cancel("msg-a")

	req.Eventually(func() bool {
		return len(snapshotB()) == 2
	}, time.Second, 5*time.Millisecond)
	req.Empty(snapshotA())
}
