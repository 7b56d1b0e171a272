package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voice_survey_backend/internal/model"
	"voice_survey_backend/internal/util"
	"voice_survey_backend/pkg/logger"
	"voice_survey_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// CallState names the phases of one call attempt.
type CallState string

const (
	StateDialing        CallState = "dialing"
	StateGreeting       CallState = "greeting"
	StateAskingQuestion CallState = "asking_question"
	StateAwaitingAnswer CallState = "awaiting_answer"
	StateClarifying     CallState = "clarifying"
	StateNextQuestion   CallState = "next_question"
	StateWrapping       CallState = "wrapping"
	StateCompleted      CallState = "completed"
	StateFailed         CallState = "failed"
)

// RunnerPolicy is the per-attempt snapshot of the dialer policy. The dialer
// captures it at dispatch so a config reload never changes the rules of a
// call already in flight.
type RunnerPolicy struct {
	MaxClarificationRounds int
	MaxSilenceRetries      int
	ListenTimeout          time.Duration
	MaxTurnTime            time.Duration
}

// EventPublisher receives structured call lifecycle events. The hub fans
// them out to websocket subscribers; a nil publisher is valid.
type EventPublisher interface {
	PublishCallEvent(event CallEvent)
}

// CallRunner executes one call attempt from dial to completion. It is
// strictly sequential inside a single attempt: the only suspension points
// are Dial, Listen and the oracle, and no lock is held across them.
type CallRunner struct {
	gateway SpeechGateway
	oracle  ClarificationOracle
	events  EventPublisher
}

func NewCallRunner(gateway SpeechGateway, oracle ClarificationOracle, events EventPublisher) *CallRunner {
	return &CallRunner{
		gateway: gateway,
		oracle:  oracle,
		events:  events,
	}
}

// errCallOver aborts the question loop when the channel is gone or the
// attempt deadline fired. The carried status decides how to finalize.
type errCallOver struct {
	status model.AttemptStatus
	kind   string
	cause  error
}

func (e *errCallOver) Error() string {
	return fmt.Sprintf("call over: %s (%v)", e.status, e.cause)
}

// Run drives the state machine against one contact and returns the
// finalized, immutable attempt. The channel is closed exactly once on every
// path out of this function.
func (r *CallRunner) Run(ctx context.Context, survey *model.Survey, contact *model.Contact, attemptNumber int, policy RunnerPolicy) *model.CallAttempt {
	attempt := &model.CallAttempt{
		SurveyID:      survey.ID,
		ContactID:     contact.ID,
		SessionID:     model.GenerateUUID(),
		PhoneNumber:   contact.PhoneNumber,
		AttemptNumber: attemptNumber,
		StartedAt:     time.Now(),
	}
	language := contact.PreferredLanguage
	if language == "" {
		language = survey.PrimaryLanguage
	}

	// MaxTurnTime bounds the whole attempt; exceeding it drops the call.
	ctx, cancel := context.WithTimeout(ctx, policy.MaxTurnTime)
	defer cancel()

	r.emit(attempt, StateDialing, "")

	ch, err := r.gateway.Dial(ctx, contact.PhoneNumber, language)
	if err != nil {
		r.finalizeDialFailure(attempt, err)
		return attempt
	}
	attempt.ProviderSID = ch.SID

	// The single hang-up point for every exit path below.
	defer func() {
		r.gateway.HangUp(ch)
		r.finish(attempt)
	}()

	r.emit(attempt, StateGreeting, "")
	greeting := survey.Greeting(language)
	if greeting == "" {
		greeting = greetingMessage(language)
	}
	questions := survey.OrderedQuestions()

	if err := r.gateway.Play(ctx, ch, greeting, language); err != nil {
		if over := r.classifyMidCall(ctx, ch, err); over != nil {
			if ch.RemoteHangup() {
				for j := range questions {
					attempt.Turns = append(attempt.Turns, hangupTurn(&questions[j], j))
				}
				attempt.Status = model.AttemptCompleted
				r.emit(attempt, StateCompleted, "")
				return attempt
			}
			r.finalizeMidCall(attempt, StateGreeting, over)
			return attempt
		}
	}
	for i := range questions {
		question := &questions[i]

		if drained(ctx) {
			// Graceful drain: skip the remaining questions, close cleanly.
			attempt.Turns = append(attempt.Turns, skippedTurn(question, i))
			continue
		}

		record, over := r.runTurn(ctx, ch, survey, question, i, language, policy)
		attempt.Turns = append(attempt.Turns, *record)
		attempt.QuestionsAsked++
		if record.Answered {
			attempt.QuestionsAnswered++
		}
		attempt.ClarificationsUsed += record.ClarificationRounds

		if over != nil {
			if ch.RemoteHangup() {
				// The contact hung up mid-survey: remaining questions are
				// recorded as abandoned and the attempt still completes.
				for j := i + 1; j < len(questions); j++ {
					attempt.Turns = append(attempt.Turns, hangupTurn(&questions[j], j))
				}
				attempt.Status = model.AttemptCompleted
				r.emit(attempt, StateCompleted, "")
				return attempt
			}
			r.finalizeMidCall(attempt, StateAwaitingAnswer, over)
			return attempt
		}
		r.emit(attempt, StateNextQuestion, "")
	}

	r.emit(attempt, StateWrapping, "")
	closing := survey.Closing(language)
	if closing == "" {
		closing = completionMessage(language)
	}
	if !ch.Closed() {
		// Closing remark failures never demote a finished survey.
		if err := r.gateway.Play(ctx, ch, closing, language); err != nil {
			logger.Log.Debug("closing remark not delivered",
				zap.String("sessionId", attempt.SessionID), zap.Error(err))
		}
	}

	attempt.Status = model.AttemptCompleted
	r.emit(attempt, StateCompleted, "")
	return attempt
}

// runTurn executes the ask/listen/clarify loop for one question, bounded by
// the clarification-round and silence-retry budgets.
func (r *CallRunner) runTurn(ctx context.Context, ch *CallChannel, survey *model.Survey, question *model.Question, order int, language string, policy RunnerPolicy) (*model.TurnRecord, *errCallOver) {
	record := &model.TurnRecord{
		QuestionID: question.ID,
		TurnOrder:  order,
		Verdicts:   model.VerdictList{},
	}

	prompt := question.PromptText(language)
	if question.Type == model.QuestionMultipleChoice && len(question.Options) > 0 {
		prompt = fmt.Sprintf("%s. Options: %s", prompt, enumerateOptions(question, language))
	}

	rounds := 0
	silences := 0
	currentPrompt := prompt

	for {
		if err := r.gateway.Play(ctx, ch, currentPrompt, language); err != nil {
			if over := r.classifyMidCall(ctx, ch, err); over != nil {
				record.AbandonReason = model.AbandonHangup
				return record, over
			}
			if drained(ctx) {
				record.AbandonReason = model.AbandonSkipped
				return record, nil
			}
			// Synthesis hiccup: retry once with the plain prompt, then
			// treat the question as abandoned.
			if currentPrompt != prompt {
				currentPrompt = prompt
				continue
			}
			record.AbandonReason = model.AbandonSkipped
			return record, nil
		}

		transcript, err := r.gateway.Listen(ctx, ch, policy.ListenTimeout)
		if err != nil {
			if errors.Is(err, util.ErrSilence) {
				silences++
				if silences > policy.MaxSilenceRetries {
					record.AbandonReason = model.AbandonSilence
					return record, nil
				}
				currentPrompt = noInputMessage(language) + " " + prompt
				continue
			}
			if over := r.classifyMidCall(ctx, ch, err); over != nil {
				record.AbandonReason = model.AbandonHangup
				return record, over
			}
			if drained(ctx) {
				record.AbandonReason = model.AbandonSkipped
				return record, nil
			}
			// Recognition errors burn a clarification round like an
			// unintelligible verdict.
			record.Verdicts = append(record.Verdicts, string(VerdictUnintelligible))
			rounds++
			record.ClarificationRounds = rounds
			if rounds >= policy.MaxClarificationRounds {
				record.AbandonReason = model.AbandonClarificationExhaust
				return record, nil
			}
			currentPrompt = clarificationPrompt(question, language, "")
			continue
		}

		record.Transcript = transcript

		verdict, err := r.oracle.Clarify(ctx, question, language, transcript)
		if err != nil {
			if over := r.classifyMidCall(ctx, ch, err); over != nil {
				record.AbandonReason = model.AbandonHangup
				return record, over
			}
			// Oracle timeouts and transport failures count as one
			// unintelligible round; they never escalate past the turn.
			verdict = Verdict{Kind: VerdictUnintelligible}
		}

		record.Verdicts = append(record.Verdicts, string(verdict.Kind))

		switch verdict.Kind {
		case VerdictAccepted:
			record.Answer = verdict.Answer
			record.Answered = true
			return record, nil

		case VerdictNeedsClarification, VerdictUnintelligible:
			rounds++
			record.ClarificationRounds = rounds
			monitoring.ClarificationRounds.Inc()
			if rounds >= policy.MaxClarificationRounds {
				record.AbandonReason = model.AbandonClarificationExhaust
				return record, nil
			}
			currentPrompt = clarificationPrompt(question, language, verdict.FollowUp)
		}
	}
}

// classifyMidCall decides whether an error ends the call. It returns nil for
// turn-level errors the caller should absorb.
func (r *CallRunner) classifyMidCall(ctx context.Context, ch *CallChannel, err error) *errCallOver {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &errCallOver{status: model.AttemptDropped, kind: "turn_timeout", cause: err}
	case errors.Is(err, util.ErrChannelClosed) || ch.Closed():
		if ch.RemoteHangup() {
			return &errCallOver{status: model.AttemptCompleted, kind: "hangup", cause: err}
		}
		return &errCallOver{status: model.AttemptDropped, kind: "channel_closed", cause: err}
	case errors.Is(err, util.ErrProvider) || errors.Is(err, util.ErrSynthesis):
		return &errCallOver{status: model.AttemptDropped, kind: "provider_error", cause: err}
	case errors.Is(err, context.Canceled):
		// Drain request: the loop notices and skips remaining questions.
		return nil
	default:
		return nil
	}
}

func (r *CallRunner) finalizeDialFailure(attempt *model.CallAttempt, err error) {
	switch {
	case errors.Is(err, util.ErrBusy):
		attempt.Status = model.AttemptBusy
		attempt.ErrorKind = "busy"
	case errors.Is(err, util.ErrNoAnswer) || errors.Is(err, context.DeadlineExceeded):
		attempt.Status = model.AttemptNoAnswer
		attempt.ErrorKind = "no_answer"
	case errors.Is(err, util.ErrVoicemail):
		attempt.Status = model.AttemptVoicemail
		attempt.ErrorKind = "voicemail"
	case errors.Is(err, util.ErrInvalidNumber):
		attempt.Status = model.AttemptError
		attempt.ErrorKind = "invalid_number"
	default:
		attempt.Status = model.AttemptError
		attempt.ErrorKind = "provider_error"
	}
	attempt.ErrorMessage = err.Error()
	attempt.FailedState = string(StateDialing)
	r.emit(attempt, StateFailed, attempt.ErrorKind)
	r.finish(attempt)
}

func (r *CallRunner) finalizeMidCall(attempt *model.CallAttempt, state CallState, over *errCallOver) {
	attempt.Status = over.status
	attempt.ErrorKind = over.kind
	if over.cause != nil {
		attempt.ErrorMessage = over.cause.Error()
	}
	attempt.FailedState = string(state)
	r.emit(attempt, StateFailed, over.kind)
}

// finish stamps the end time and quality score; it is idempotent so the
// deferred hang-up path and the dial-failure path can both call it.
func (r *CallRunner) finish(attempt *model.CallAttempt) {
	if attempt.EndedAt != nil {
		return
	}
	now := time.Now()
	attempt.EndedAt = &now
	attempt.QualityScore = qualityScore(attempt)
	monitoring.CallDuration.Observe(now.Sub(attempt.StartedAt).Seconds())
}

// qualityScore rewards answered questions and discounts clarification cost:
// answered ratio minus 0.1 per average clarification round, clamped to [0,1].
func qualityScore(attempt *model.CallAttempt) float64 {
	if attempt.QuestionsAsked == 0 {
		return 0
	}
	answered := float64(attempt.QuestionsAnswered) / float64(attempt.QuestionsAsked)
	penalty := 0.1 * float64(attempt.ClarificationsUsed) / float64(attempt.QuestionsAsked)
	score := answered - penalty
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func clarificationPrompt(question *model.Question, language, followUp string) string {
	if strings.TrimSpace(followUp) != "" {
		return followUp
	}
	if p := question.ClarificationPrompt(language); p != "" {
		return p
	}
	return noInputMessage(language) + " " + question.PromptText(language)
}

func enumerateOptions(question *model.Question, language string) string {
	options := question.Options
	if question.OptionsTranslations != nil {
		if translated, ok := question.OptionsTranslations[language]; ok && translated != "" {
			return translated
		}
	}
	parts := make([]string, len(options))
	for i, option := range options {
		parts[i] = fmt.Sprintf("%d. %s", i+1, option)
	}
	return strings.Join(parts, ". ")
}

func skippedTurn(question *model.Question, order int) model.TurnRecord {
	return model.TurnRecord{
		QuestionID:    question.ID,
		TurnOrder:     order,
		Verdicts:      model.VerdictList{},
		AbandonReason: model.AbandonSkipped,
	}
}

func hangupTurn(question *model.Question, order int) model.TurnRecord {
	return model.TurnRecord{
		QuestionID:    question.ID,
		TurnOrder:     order,
		Verdicts:      model.VerdictList{},
		AbandonReason: model.AbandonHangup,
	}
}

func drained(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

func (r *CallRunner) emit(attempt *model.CallAttempt, state CallState, errorKind string) {
	if r.events == nil {
		return
	}
	r.events.PublishCallEvent(CallEvent{
		SessionID: attempt.SessionID,
		SurveyID:  attempt.SurveyID,
		ContactID: attempt.ContactID,
		State:     string(state),
		Status:    string(attempt.Status),
		ErrorKind: errorKind,
		Timestamp: time.Now(),
	})
}
