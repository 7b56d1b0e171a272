package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voice_survey_backend/internal/model"
	"voice_survey_backend/internal/util"
)

type listenStep struct {
	transcript string
	err        error
}

// fakeGateway scripts the telephony side of a call: listen results pop in
// order, plays are recorded, and the remote side can hang up after a given
// number of plays.
type fakeGateway struct {
	mu               sync.Mutex
	dialErr          error
	listenSteps      []listenStep
	played           []string
	hangups          int
	hangupAfterPlays int
	blockListen      bool
	ch               *CallChannel
}

func newTestChannel() *CallChannel {
	return &CallChannel{
		SID:         "CA-test",
		dialResult:  make(chan error, 1),
		transcripts: make(chan string, 4),
		done:        make(chan struct{}),
	}
}

func (g *fakeGateway) Dial(ctx context.Context, phoneNumber, language string) (*CallChannel, error) {
	if g.dialErr != nil {
		return nil, g.dialErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ch = newTestChannel()
	return g.ch, nil
}

func (g *fakeGateway) Play(ctx context.Context, ch *CallChannel, text, language string) error {
	g.mu.Lock()
	g.played = append(g.played, text)
	plays := len(g.played)
	limit := g.hangupAfterPlays
	g.mu.Unlock()

	if ch.Closed() {
		return util.ErrChannelClosed
	}
	if limit > 0 && plays >= limit {
		ch.close(true)
		return util.ErrChannelClosed
	}
	return nil
}

func (g *fakeGateway) Listen(ctx context.Context, ch *CallChannel, timeout time.Duration) (string, error) {
	if g.blockListen {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if ch.Closed() {
		return "", util.ErrChannelClosed
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.listenSteps) == 0 {
		return "", util.ErrSilence
	}
	step := g.listenSteps[0]
	g.listenSteps = g.listenSteps[1:]
	return step.transcript, step.err
}

func (g *fakeGateway) HangUp(ch *CallChannel) error {
	g.mu.Lock()
	g.hangups++
	g.mu.Unlock()
	if ch != nil {
		ch.hangupOnce.Do(func() {
			ch.close(false)
		})
	}
	return nil
}

func (g *fakeGateway) hangupCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hangups
}

func (g *fakeGateway) playedTexts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.played))
	copy(out, g.played)
	return out
}

type oracleStep struct {
	verdict Verdict
	err     error
}

type fakeOracle struct {
	mu        sync.Mutex
	steps     []oracleStep
	onClarify func()
}

func (o *fakeOracle) Clarify(ctx context.Context, question *model.Question, language, transcript string) (Verdict, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.onClarify != nil {
		o.onClarify()
	}
	if len(o.steps) == 0 {
		return Verdict{Kind: VerdictAccepted, Answer: transcript}, nil
	}
	step := o.steps[0]
	o.steps = o.steps[1:]
	return step.verdict, step.err
}

func testPolicy() RunnerPolicy {
	return RunnerPolicy{
		MaxClarificationRounds: 2,
		MaxSilenceRetries:      1,
		ListenTimeout:          100 * time.Millisecond,
		MaxTurnTime:            5 * time.Second,
	}
}

func testSurvey() *model.Survey {
	return &model.Survey{
		BaseModel:       model.BaseModel{ID: 1},
		Title:           "Satisfaction",
		Status:          model.SurveyActive,
		PrimaryLanguage: "en",
		Questions: []model.Question{
			{BaseModel: model.BaseModel{ID: 11}, SurveyID: 1, Text: "Are you satisfied?", Type: model.QuestionYesNo, OrderNumber: 1},
			{BaseModel: model.BaseModel{ID: 12}, SurveyID: 1, Text: "How likely are you to recommend us?", Type: model.QuestionRating, OrderNumber: 2},
			{BaseModel: model.BaseModel{ID: 13}, SurveyID: 1, Text: "Preferred support channel?", Type: model.QuestionMultipleChoice, OrderNumber: 3, Options: model.JSONList{"Phone", "Email", "Chat"}},
		},
	}
}

func testContact() *model.Contact {
	return &model.Contact{
		BaseModel:         model.BaseModel{ID: 7},
		SurveyID:          1,
		PhoneNumber:       "+15551234567",
		PreferredLanguage: "en",
		Status:            model.ContactInProgress,
	}
}

// A full survey run: first question answered directly, second answered after
// one clarification, third abandoned after the clarification budget runs out.
// The attempt still completes and holds one turn per question, in ask order.
func TestRunFullSurvey(t *testing.T) {
	gateway := &fakeGateway{
		listenSteps: []listenStep{
			{transcript: "yes"},
			{transcript: "seven I think"},
			{transcript: "seven"},
			{transcript: "the weather is nice"},
			{transcript: "purple elephants"},
		},
	}
	oracle := &fakeOracle{
		steps: []oracleStep{
			{verdict: Verdict{Kind: VerdictAccepted, Answer: "yes"}},
			{verdict: Verdict{Kind: VerdictNeedsClarification, FollowUp: "Just the number, please."}},
			{verdict: Verdict{Kind: VerdictAccepted, Answer: "7"}},
			{verdict: Verdict{Kind: VerdictUnintelligible}},
			{verdict: Verdict{Kind: VerdictUnintelligible}},
		},
	}

	runner := NewCallRunner(gateway, oracle, nil)
	attempt := runner.Run(context.Background(), testSurvey(), testContact(), 1, testPolicy())

	if attempt.Status != model.AttemptCompleted {
		t.Fatalf("status = %s, want completed", attempt.Status)
	}
	if len(attempt.Turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(attempt.Turns))
	}
	for i, turn := range attempt.Turns {
		if turn.TurnOrder != i {
			t.Errorf("turn %d has order %d", i, turn.TurnOrder)
		}
	}

	first := attempt.Turns[0]
	if !first.Answered || first.Answer != "yes" || first.ClarificationRounds != 0 {
		t.Errorf("first turn = %+v, want answered yes with no clarifications", first)
	}

	second := attempt.Turns[1]
	if !second.Answered || second.Answer != "7" {
		t.Errorf("second turn = %+v, want answered 7", second)
	}
	if second.ClarificationRounds != 1 {
		t.Errorf("second turn clarification rounds = %d, want 1", second.ClarificationRounds)
	}

	third := attempt.Turns[2]
	if third.Answered {
		t.Errorf("third turn should not be answered")
	}
	if third.AbandonReason != model.AbandonClarificationExhaust {
		t.Errorf("third turn abandon reason = %s, want clarification_exhausted", third.AbandonReason)
	}
	if len(third.Verdicts) != 2 {
		t.Errorf("third turn verdicts = %v, want exactly 2", third.Verdicts)
	}

	if attempt.QuestionsAsked != 3 || attempt.QuestionsAnswered != 2 {
		t.Errorf("asked/answered = %d/%d, want 3/2", attempt.QuestionsAsked, attempt.QuestionsAnswered)
	}
	if attempt.ClarificationsUsed != 3 {
		t.Errorf("clarifications used = %d, want 3", attempt.ClarificationsUsed)
	}
	if attempt.EndedAt == nil {
		t.Error("attempt not finalized")
	}
	if got := gateway.hangupCount(); got != 1 {
		t.Errorf("hangups = %d, want exactly 1", got)
	}

	played := gateway.playedTexts()
	if len(played) == 0 || played[len(played)-1] != completionMessage("en") {
		t.Errorf("closing remark not played last: %v", played)
	}
}

func TestRunDialFailures(t *testing.T) {
	cases := []struct {
		name       string
		dialErr    error
		wantStatus model.AttemptStatus
		wantKind   string
	}{
		{"busy", util.ErrBusy, model.AttemptBusy, "busy"},
		{"no answer", util.ErrNoAnswer, model.AttemptNoAnswer, "no_answer"},
		{"voicemail", util.ErrVoicemail, model.AttemptVoicemail, "voicemail"},
		{"invalid number", util.ErrInvalidNumber, model.AttemptError, "invalid_number"},
		{"provider", errors.New("connection refused"), model.AttemptError, "provider_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gateway := &fakeGateway{dialErr: tc.dialErr}
			runner := NewCallRunner(gateway, &fakeOracle{}, nil)

			attempt := runner.Run(context.Background(), testSurvey(), testContact(), 1, testPolicy())

			if attempt.Status != tc.wantStatus {
				t.Errorf("status = %s, want %s", attempt.Status, tc.wantStatus)
			}
			if attempt.ErrorKind != tc.wantKind {
				t.Errorf("error kind = %s, want %s", attempt.ErrorKind, tc.wantKind)
			}
			if attempt.FailedState != string(StateDialing) {
				t.Errorf("failed state = %s, want dialing", attempt.FailedState)
			}
			if len(attempt.Turns) != 0 {
				t.Errorf("turns = %d, want 0", len(attempt.Turns))
			}
			if attempt.EndedAt == nil {
				t.Error("attempt not finalized")
			}
		})
	}
}

// The contact hanging up mid-survey completes the attempt; the questions
// never reached are recorded as hangup-abandoned turns.
func TestRunRemoteHangupMidSurvey(t *testing.T) {
	gateway := &fakeGateway{
		listenSteps: []listenStep{
			{transcript: "yes"},
		},
		// greeting, question 1, question 2 -> remote hangs up
		hangupAfterPlays: 3,
	}
	oracle := &fakeOracle{
		steps: []oracleStep{
			{verdict: Verdict{Kind: VerdictAccepted, Answer: "yes"}},
		},
	}

	runner := NewCallRunner(gateway, oracle, nil)
	attempt := runner.Run(context.Background(), testSurvey(), testContact(), 1, testPolicy())

	if attempt.Status != model.AttemptCompleted {
		t.Fatalf("status = %s, want completed", attempt.Status)
	}
	if len(attempt.Turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(attempt.Turns))
	}
	if !attempt.Turns[0].Answered {
		t.Error("first turn should be answered")
	}
	for i := 1; i < 3; i++ {
		if attempt.Turns[i].AbandonReason != model.AbandonHangup {
			t.Errorf("turn %d abandon reason = %s, want hangup", i, attempt.Turns[i].AbandonReason)
		}
	}
	if got := gateway.hangupCount(); got != 1 {
		t.Errorf("hangups = %d, want exactly 1", got)
	}
}

// Silence past the retry budget abandons the turn but not the call.
func TestRunSilenceAbandonsTurn(t *testing.T) {
	gateway := &fakeGateway{
		listenSteps: []listenStep{
			{err: util.ErrSilence},
			{err: util.ErrSilence},
			{transcript: "eight"},
			{transcript: "phone"},
		},
	}
	oracle := &fakeOracle{
		steps: []oracleStep{
			{verdict: Verdict{Kind: VerdictAccepted, Answer: "8"}},
			{verdict: Verdict{Kind: VerdictAccepted, Answer: "Phone"}},
		},
	}

	runner := NewCallRunner(gateway, oracle, nil)
	attempt := runner.Run(context.Background(), testSurvey(), testContact(), 1, testPolicy())

	if attempt.Status != model.AttemptCompleted {
		t.Fatalf("status = %s, want completed", attempt.Status)
	}
	if attempt.Turns[0].AbandonReason != model.AbandonSilence {
		t.Errorf("first turn abandon reason = %s, want silence", attempt.Turns[0].AbandonReason)
	}
	if !attempt.Turns[1].Answered || !attempt.Turns[2].Answered {
		t.Error("remaining questions should still be asked and answered")
	}
	if attempt.QuestionsAnswered != 2 {
		t.Errorf("answered = %d, want 2", attempt.QuestionsAnswered)
	}
}

// Oracle failures cost a clarification round each instead of ending the call.
func TestRunOracleFailureBurnsRound(t *testing.T) {
	gateway := &fakeGateway{
		listenSteps: []listenStep{
			{transcript: "mumble"},
			{transcript: "mumble again"},
			{transcript: "nine"},
			{transcript: "email"},
		},
	}
	oracle := &fakeOracle{
		steps: []oracleStep{
			{err: util.ErrOracleTimeout},
			{err: util.ErrOracleTimeout},
			{verdict: Verdict{Kind: VerdictAccepted, Answer: "9"}},
			{verdict: Verdict{Kind: VerdictAccepted, Answer: "Email"}},
		},
	}

	runner := NewCallRunner(gateway, oracle, nil)
	attempt := runner.Run(context.Background(), testSurvey(), testContact(), 1, testPolicy())

	if attempt.Status != model.AttemptCompleted {
		t.Fatalf("status = %s, want completed", attempt.Status)
	}
	if attempt.Turns[0].AbandonReason != model.AbandonClarificationExhaust {
		t.Errorf("first turn abandon reason = %s, want clarification_exhausted", attempt.Turns[0].AbandonReason)
	}
	if attempt.Turns[0].ClarificationRounds != 2 {
		t.Errorf("first turn rounds = %d, want 2", attempt.Turns[0].ClarificationRounds)
	}
}

// Exceeding the per-attempt deadline drops the call; the attempt stays
// retryable.
func TestRunAttemptDeadline(t *testing.T) {
	gateway := &fakeGateway{blockListen: true}
	policy := testPolicy()
	policy.MaxTurnTime = 50 * time.Millisecond

	runner := NewCallRunner(gateway, &fakeOracle{}, nil)
	attempt := runner.Run(context.Background(), testSurvey(), testContact(), 1, policy)

	if attempt.Status != model.AttemptDropped {
		t.Fatalf("status = %s, want dropped", attempt.Status)
	}
	if attempt.ErrorKind != "turn_timeout" {
		t.Errorf("error kind = %s, want turn_timeout", attempt.ErrorKind)
	}
	if !attempt.Status.Transient() {
		t.Error("dropped attempts must be retryable")
	}
	if got := gateway.hangupCount(); got != 1 {
		t.Errorf("hangups = %d, want exactly 1", got)
	}
}

// A drain (context cancel) finishes the current turn, skips the rest and
// still completes the attempt.
func TestRunDrainSkipsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gateway := &fakeGateway{
		listenSteps: []listenStep{
			{transcript: "yes"},
		},
	}
	oracle := &fakeOracle{
		steps: []oracleStep{
			{verdict: Verdict{Kind: VerdictAccepted, Answer: "yes"}},
		},
		onClarify: cancel,
	}

	runner := NewCallRunner(gateway, oracle, nil)
	attempt := runner.Run(ctx, testSurvey(), testContact(), 1, testPolicy())

	if attempt.Status != model.AttemptCompleted {
		t.Fatalf("status = %s, want completed", attempt.Status)
	}
	if len(attempt.Turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(attempt.Turns))
	}
	if !attempt.Turns[0].Answered {
		t.Error("in-flight turn should finish before the drain")
	}
	for i := 1; i < 3; i++ {
		if attempt.Turns[i].AbandonReason != model.AbandonSkipped {
			t.Errorf("turn %d abandon reason = %s, want skipped", i, attempt.Turns[i].AbandonReason)
		}
	}
}

func TestQualityScore(t *testing.T) {
	cases := []struct {
		name    string
		attempt model.CallAttempt
		want    float64
	}{
		{"nothing asked", model.CallAttempt{}, 0},
		{"all answered clean", model.CallAttempt{QuestionsAsked: 3, QuestionsAnswered: 3}, 1},
		{"partial with clarifications", model.CallAttempt{QuestionsAsked: 4, QuestionsAnswered: 2, ClarificationsUsed: 2}, 0.45},
		{"floor at zero", model.CallAttempt{QuestionsAsked: 1, QuestionsAnswered: 0, ClarificationsUsed: 20}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := qualityScore(&tc.attempt)
			if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("qualityScore = %v, want %v", got, tc.want)
			}
		})
	}
}
