package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"voice_survey_backend/internal/model"
)

// flakyStore fails the first N saves, then stores.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	saved    []*model.CallAttempt
}

func (s *flakyStore) Save(attempt *model.CallAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("storage unavailable")
	}
	s.saved = append(s.saved, attempt)
	return nil
}

func (s *flakyStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func TestSinkRetriesUntilDelivered(t *testing.T) {
	store := &flakyStore{failures: 3}
	sink := NewResultSink(store, nil)
	sink.retryDelay = time.Millisecond
	sink.Run()

	sink.Submit(&model.CallAttempt{SessionID: "s1", ContactID: 1, AttemptNumber: 1})

	waitFor(t, time.Second, "delivery", func() bool {
		return store.count() == 1
	})
	sink.Stop()

	if store.count() != 1 {
		t.Fatalf("saved = %d, want 1", store.count())
	}
}

func TestSinkStopDrainsQueue(t *testing.T) {
	store := &flakyStore{}
	sink := NewResultSink(store, nil)
	sink.Run()

	for i := 1; i <= 5; i++ {
		sink.Submit(&model.CallAttempt{ContactID: uint(i), AttemptNumber: 1})
	}
	sink.Stop()

	if store.count() != 5 {
		t.Fatalf("saved = %d, want 5 after drain", store.count())
	}
}

func TestSinkSubmitAfterStopDeliversInline(t *testing.T) {
	store := &flakyStore{}
	sink := NewResultSink(store, nil)
	sink.Run()
	sink.Stop()

	done := make(chan struct{})
	go func() {
		sink.Submit(&model.CallAttempt{ContactID: 9, AttemptNumber: 1})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked after Stop")
	}
	if store.count() != 1 {
		t.Fatalf("saved = %d, want 1", store.count())
	}
}

func TestSinkStopDuringSubmitBurst(t *testing.T) {
	store := &flakyStore{}
	sink := NewResultSink(store, nil)
	sink.Run()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sink.Submit(&model.CallAttempt{ContactID: uint(base*100 + j + 1), AttemptNumber: 1})
			}
		}(i)
	}
	sink.Stop()
	wg.Wait()

	if store.count() != 400 {
		t.Fatalf("saved = %d, want 400", store.count())
	}
}

func TestSinkSubmitNeverBlocks(t *testing.T) {
	store := &flakyStore{}
	sink := NewResultSink(store, nil)
	// No Run: the queue fills up and Submit must still return.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			sink.Submit(&model.CallAttempt{ContactID: uint(i), AttemptNumber: 1})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked the caller")
	}

	sink.Run()
	waitFor(t, 2*time.Second, "backlog delivery", func() bool {
		return store.count() == 300
	})
	sink.Stop()
}
