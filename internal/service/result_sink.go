package service

import (
	"sync"
	"time"

	"voice_survey_backend/internal/model"
	"voice_survey_backend/pkg/logger"
	"voice_survey_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// AttemptStore persists finalized call attempts. Save must be idempotent on
// (contact id, attempt number).
type AttemptStore interface {
	Save(attempt *model.CallAttempt) error
}

// ResultSink hands finalized attempts to storage with at-least-once
// semantics. Delivery failures are retried on a timer and never block the
// worker pool; the attempt is immutable by the time it reaches the sink so
// retries are safe.
type ResultSink struct {
	store      AttemptStore
	events     EventPublisher
	queue      chan *model.CallAttempt
	retryDelay time.Duration
	maxRetries int

	mu         sync.Mutex
	closed     bool
	submitters sync.WaitGroup
	consumer   sync.WaitGroup
	stopOnce   sync.Once
}

func NewResultSink(store AttemptStore, events EventPublisher) *ResultSink {
	return &ResultSink{
		store:      store,
		events:     events,
		queue:      make(chan *model.CallAttempt, 256),
		retryDelay: 5 * time.Second,
		maxRetries: 10,
	}
}

// Submit enqueues an attempt for delivery without ever blocking the caller.
// After Stop the queue is gone, so the attempt is delivered inline instead.
func (s *ResultSink) Submit(attempt *model.CallAttempt) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.deliver(attempt)
		return
	}
	select {
	case s.queue <- attempt:
		s.mu.Unlock()
	default:
		// Queue full: hand off in a goroutine rather than dropping the
		// record or stalling the worker. The Add happens under the same
		// lock Stop takes before Wait, so the handoff is always counted.
		s.submitters.Add(1)
		s.mu.Unlock()
		go func() {
			defer s.submitters.Done()
			s.queue <- attempt
		}()
	}
}

func (s *ResultSink) Run() {
	s.consumer.Add(1)
	go func() {
		defer s.consumer.Done()
		for attempt := range s.queue {
			s.deliver(attempt)
		}
	}()
}

func (s *ResultSink) deliver(attempt *model.CallAttempt) {
	var err error
	for i := 0; i <= s.maxRetries; i++ {
		if i > 0 {
			monitoring.SinkRetries.Inc()
			time.Sleep(s.retryDelay)
		}
		if err = s.store.Save(attempt); err == nil {
			monitoring.CallAttemptsTotal.WithLabelValues(string(attempt.Status)).Inc()
			return
		}
		logger.Log.Error("result sink delivery failed",
			zap.String("sessionId", attempt.SessionID),
			zap.Uint("contactId", attempt.ContactID),
			zap.Int("attemptNumber", attempt.AttemptNumber),
			zap.Int("delivery", i+1),
			zap.Error(err))
	}
	logger.Log.Error("result sink dropping attempt after exhausting retries",
		zap.String("sessionId", attempt.SessionID),
		zap.Uint("contactId", attempt.ContactID),
		zap.Int("attemptNumber", attempt.AttemptNumber),
		zap.Error(err))
	if s.events != nil {
		s.events.PublishCallEvent(CallEvent{
			SessionID: attempt.SessionID,
			SurveyID:  attempt.SurveyID,
			ContactID: attempt.ContactID,
			State:     "result_lost",
			Status:    string(attempt.Status),
			ErrorKind: "sink_exhausted",
			Timestamp: time.Now(),
		})
	}
}

// Stop drains the queue: every already-submitted attempt gets delivered (or
// exhausts its retries) before shutdown.
func (s *ResultSink) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.submitters.Wait()
		close(s.queue)
	})
	s.consumer.Wait()
}
