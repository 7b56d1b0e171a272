package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voice_survey_backend/internal/config"
	"voice_survey_backend/internal/model"
	"voice_survey_backend/pkg/logger"
	"voice_survey_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SurveyStore is the scheduler's read-only view of surveys.
type SurveyStore interface {
	FindActive() ([]*model.Survey, error)
}

// ContactStore mediates contact ownership between scheduler and workers.
type ContactStore interface {
	FindEligible(surveyID uint, limit int) ([]*model.Contact, error)
	Claim(contactID uint) (bool, error)
	Release(contact *model.Contact) error
}

// AttemptRunner executes a single call attempt to completion.
type AttemptRunner interface {
	Run(ctx context.Context, survey *model.Survey, contact *model.Contact, attemptNumber int, policy RunnerPolicy) *model.CallAttempt
}

// ResultSubmitter accepts finalized attempts for persistence.
type ResultSubmitter interface {
	Submit(attempt *model.CallAttempt)
}

// DialerService owns the dispatch loop: every tick it scans active surveys,
// claims eligible contacts and hands each one to a worker goroutine. The
// number of in-flight calls never exceeds the configured pool size, and the
// pool size follows config reloads without a restart.
type DialerService struct {
	surveys  SurveyStore
	contacts ContactStore
	runner   AttemptRunner
	sink     ResultSubmitter
	redis    *redis.Client

	mu       sync.Mutex
	cfg      config.DialerConfig
	active   int
	running  bool
	limiters map[uint]*rate.Limiter
	// Per-survey contexts let a pause cancel that survey's in-flight calls
	// without touching the rest of the pool.
	surveyCtxs    map[uint]context.Context
	surveyCancels map[uint]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDialerService(cfg config.DialerConfig, surveys SurveyStore, contacts ContactStore, runner AttemptRunner, sink ResultSubmitter, rdb *redis.Client) *DialerService {
	config.ApplyDialerDefaults(&cfg)
	ctx, cancel := context.WithCancel(context.Background())
	return &DialerService{
		surveys:       surveys,
		contacts:      contacts,
		runner:        runner,
		sink:          sink,
		redis:         rdb,
		cfg:           cfg,
		limiters:      make(map[uint]*rate.Limiter),
		surveyCtxs:    make(map[uint]context.Context),
		surveyCancels: make(map[uint]context.CancelFunc),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Run drives the scheduling loop until Stop is called. A timer rather than a
// ticker so a reloaded schedule interval applies on the next round.
func (d *DialerService) Run() {
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()
	logger.Log.Info("Dialer started",
		zap.Int("maxConcurrentCalls", d.snapshot().MaxConcurrentCalls))

	d.tick()
	timer := time.NewTimer(d.snapshot().ScheduleInterval)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			d.tick()
			timer.Reset(d.snapshot().ScheduleInterval)
		case <-d.ctx.Done():
			return
		}
	}
}

// Stop cancels all in-flight calls and waits for the workers to drain. Calls
// finish their current turn, record the remaining questions as skipped and
// still flow through the sink.
func (d *DialerService) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	logger.Log.Info("Dialer stopped, all workers drained")
}

func (d *DialerService) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// UpdateConfig applies a reloaded dialer policy. In-flight calls keep the
// policy they were dispatched with; the pool bound and rate limits take
// effect on the next tick.
func (d *DialerService) UpdateConfig(cfg config.DialerConfig) {
	config.ApplyDialerDefaults(&cfg)
	d.mu.Lock()
	d.cfg = cfg
	d.limiters = make(map[uint]*rate.Limiter)
	d.mu.Unlock()
	logger.Log.Info("Dialer config updated",
		zap.Int("maxConcurrentCalls", cfg.MaxConcurrentCalls),
		zap.Int("maxCallAttempts", cfg.MaxCallAttempts),
		zap.Int("callsPerMinutePerSurvey", cfg.CallsPerMinutePerSurvey))
}

// PauseSurvey cancels the survey's in-flight calls. Pending contacts stay
// untouched; the scheduler stops dispatching for the survey once its status
// leaves active.
func (d *DialerService) PauseSurvey(surveyID uint) {
	d.mu.Lock()
	cancel, ok := d.surveyCancels[surveyID]
	if ok {
		delete(d.surveyCancels, surveyID)
		delete(d.surveyCtxs, surveyID)
	}
	d.mu.Unlock()
	if ok {
		cancel()
		logger.Log.Info("Survey paused, draining its calls", zap.Uint("surveyId", surveyID))
	}
}

// DialerStatus is the snapshot reported by the status endpoint.
type DialerStatus struct {
	Running            bool `json:"running"`
	ActiveCalls        int  `json:"activeCalls"`
	MaxConcurrentCalls int  `json:"maxConcurrentCalls"`
}

func (d *DialerService) Status() DialerStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DialerStatus{
		Running:            d.running,
		ActiveCalls:        d.active,
		MaxConcurrentCalls: d.cfg.MaxConcurrentCalls,
	}
}

func (d *DialerService) snapshot() config.DialerConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// tick runs one scheduling round: fill the free pool slots from the active
// surveys, oldest eligible contacts first.
func (d *DialerService) tick() {
	if d.ctx.Err() != nil {
		return
	}
	surveys, err := d.surveys.FindActive()
	if err != nil {
		logger.Log.Error("failed to load active surveys", zap.Error(err))
		return
	}

	for _, survey := range surveys {
		free := d.freeSlots()
		if free <= 0 {
			return
		}
		d.dispatchSurvey(survey, free)
	}
}

func (d *DialerService) dispatchSurvey(survey *model.Survey, limit int) {
	contacts, err := d.contacts.FindEligible(survey.ID, limit)
	if err != nil {
		logger.Log.Error("failed to load eligible contacts",
			zap.Uint("surveyId", survey.ID), zap.Error(err))
		return
	}

	for _, contact := range contacts {
		if !d.allowRate(survey.ID) {
			// Per-survey pacing exhausted for this minute; the contact
			// stays pending for a later tick.
			return
		}
		if !d.acquireSlot() {
			return
		}
		claimed, err := d.contacts.Claim(contact.ID)
		if err != nil || !claimed {
			// Lost the race to another instance; the slot goes back.
			d.releaseSlot()
			if err != nil {
				logger.Log.Error("contact claim failed",
					zap.Uint("contactId", contact.ID), zap.Error(err))
			}
			continue
		}
		d.launch(survey, contact)
	}
}

func (d *DialerService) launch(survey *model.Survey, contact *model.Contact) {
	ctx := d.surveyContext(survey.ID)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.releaseSlot()
		d.work(ctx, survey, contact)
	}()
}

func (d *DialerService) work(ctx context.Context, survey *model.Survey, contact *model.Contact) {
	monitoring.ActiveCalls.Inc()
	defer monitoring.ActiveCalls.Dec()

	policy := d.policy(survey)
	attemptNumber := contact.CallAttempts + 1

	logger.Log.Info("placing call",
		zap.Uint("surveyId", survey.ID),
		zap.Uint("contactId", contact.ID),
		zap.Int("attemptNumber", attemptNumber))

	attempt := d.runner.Run(ctx, survey, contact, attemptNumber, policy)
	d.settle(survey, contact, attempt)
}

// settle applies the retry policy to the finished attempt, releases the
// contact back to the scheduler and submits the attempt to the sink.
func (d *DialerService) settle(survey *model.Survey, contact *model.Contact, attempt *model.CallAttempt) {
	now := time.Now()
	contact.CallAttempts = attempt.AttemptNumber
	contact.LastCallAt = &now
	contact.LastCallResult = string(attempt.Status)
	contact.NextEligibleAt = nil

	switch {
	case attempt.Status == model.AttemptCompleted:
		contact.Status = model.ContactCompleted

	case attempt.ErrorKind == "invalid_number":
		// Never dial a number the provider rejected as malformed.
		contact.Status = model.ContactDoNotCall

	default:
		// Transient outcome (busy, no answer, voicemail, dropped, provider
		// error): retry with backoff until the attempt budget runs out.
		if attempt.AttemptNumber >= d.maxAttempts(survey) {
			contact.Status = model.ContactFailed
		} else {
			contact.Status = model.ContactPending
			next := now.Add(d.backoff(survey, attempt.AttemptNumber))
			contact.NextEligibleAt = &next
		}
	}

	if err := d.contacts.Release(contact); err != nil {
		logger.Log.Error("contact release failed",
			zap.Uint("contactId", contact.ID), zap.Error(err))
	}
	d.sink.Submit(attempt)

	logger.Log.Info("call settled",
		zap.Uint("contactId", contact.ID),
		zap.String("attemptStatus", string(attempt.Status)),
		zap.String("contactStatus", string(contact.Status)),
		zap.Float64("qualityScore", attempt.QualityScore))
}

func (d *DialerService) policy(survey *model.Survey) RunnerPolicy {
	cfg := d.snapshot()
	policy := RunnerPolicy{
		MaxClarificationRounds: cfg.MaxClarificationRounds,
		MaxSilenceRetries:      cfg.MaxSilenceRetries,
		ListenTimeout:          cfg.ListenTimeout,
		MaxTurnTime:            cfg.MaxTurnTime,
	}
	if !survey.ClarificationEnabled {
		policy.MaxClarificationRounds = 1
	}
	return policy
}

func (d *DialerService) maxAttempts(survey *model.Survey) int {
	if survey.RetryAttempts > 0 {
		return survey.RetryAttempts
	}
	return d.snapshot().MaxCallAttempts
}

// backoff returns the cool-down before the next attempt. A per-survey retry
// interval overrides the global schedule; attempts past the end of the
// schedule reuse its last step.
func (d *DialerService) backoff(survey *model.Survey, attemptNumber int) time.Duration {
	if survey.RetryInterval > 0 {
		return time.Duration(survey.RetryInterval) * time.Hour
	}
	schedule := d.snapshot().RetryBackoffSchedule()
	idx := attemptNumber - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}

func (d *DialerService) acquireSlot() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running || d.active >= d.cfg.MaxConcurrentCalls {
		return false
	}
	d.active++
	return true
}

func (d *DialerService) releaseSlot() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active > 0 {
		d.active--
	}
}

func (d *DialerService) freeSlots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	free := d.cfg.MaxConcurrentCalls - d.active
	if free < 0 {
		return 0
	}
	return free
}

func (d *DialerService) surveyContext(surveyID uint) context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ctx, ok := d.surveyCtxs[surveyID]; ok {
		return ctx
	}
	ctx, cancel := context.WithCancel(d.ctx)
	d.surveyCtxs[surveyID] = ctx
	d.surveyCancels[surveyID] = cancel
	return ctx
}

// allowRate enforces the per-survey calls-per-minute cap: a local token
// bucket for pacing plus, when Redis is available, a shared per-minute
// counter so multiple instances respect the same ceiling.
func (d *DialerService) allowRate(surveyID uint) bool {
	d.mu.Lock()
	perMinute := d.cfg.CallsPerMinutePerSurvey
	lim, ok := d.limiters[surveyID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
		d.limiters[surveyID] = lim
	}
	d.mu.Unlock()

	if !lim.Allow() {
		return false
	}
	return d.allowRateShared(surveyID, perMinute)
}

func (d *DialerService) allowRateShared(surveyID uint, perMinute int) bool {
	if d.redis == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := fmt.Sprintf("dialer:rate:%d:%d", surveyID, time.Now().Unix()/60)
	count, err := d.redis.Incr(ctx, key).Result()
	if err != nil {
		// A Redis outage must not stall dialing; the local limiter still
		// bounds this instance.
		logger.Log.Debug("shared rate counter unavailable", zap.Error(err))
		return true
	}
	if count == 1 {
		d.redis.Expire(ctx, key, 2*time.Minute)
	}
	return count <= int64(perMinute)
}
