package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice_survey_backend/internal/config"
	"voice_survey_backend/internal/model"
	"voice_survey_backend/internal/util"
)

func textQuestion() *model.Question {
	return &model.Question{Text: "What did you like most?", Type: model.QuestionText}
}

func TestClarifyResolvesLocally(t *testing.T) {
	cases := []struct {
		name       string
		question   *model.Question
		transcript string
		wantAnswer string
	}{
		{"yes", &model.Question{Type: model.QuestionYesNo}, "Yes.", "yes"},
		{"hindi yes", &model.Question{Type: model.QuestionYesNo}, "haan", "yes"},
		{"no", &model.Question{Type: model.QuestionYesNo}, "nope", "no"},
		{"numeric", &model.Question{Type: model.QuestionNumeric}, "42", "42"},
		{"rating", &model.Question{Type: model.QuestionRating}, "8", "8"},
		{"choice by text", &model.Question{Type: model.QuestionMultipleChoice, Options: model.JSONList{"Phone", "Email"}}, "email", "Email"},
		{"choice by index", &model.Question{Type: model.QuestionMultipleChoice, Options: model.JSONList{"Phone", "Email"}}, "1", "Phone"},
	}

	// No server configured: the test fails with a transport error if the
	// service ever leaves the local path.
	svc := NewClarifyService(config.AIConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := svc.Clarify(context.Background(), tc.question, "en", tc.transcript)
			if err != nil {
				t.Fatalf("Clarify: %v", err)
			}
			if v.Kind != VerdictAccepted || v.Answer != tc.wantAnswer {
				t.Errorf("verdict = %+v, want accepted %q", v, tc.wantAnswer)
			}
		})
	}
}

func TestClarifyEmptyTranscript(t *testing.T) {
	svc := NewClarifyService(config.AIConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	v, err := svc.Clarify(context.Background(), textQuestion(), "en", "   ")
	if err != nil {
		t.Fatalf("Clarify: %v", err)
	}
	if v.Kind != VerdictUnintelligible {
		t.Errorf("verdict = %s, want unintelligible", v.Kind)
	}
}

func TestClarifyCallsModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected auth header: %s", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Sure, here you go: {\"verdict\":\"needs_clarification\",\"follow_up\":\"Did you mean the delivery or the product?\"}"}}]}`))
	}))
	defer srv.Close()

	svc := NewClarifyService(config.AIConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model", Timeout: 2 * time.Second})
	v, err := svc.Clarify(context.Background(), textQuestion(), "en", "it was okay I guess")
	if err != nil {
		t.Fatalf("Clarify: %v", err)
	}
	if v.Kind != VerdictNeedsClarification {
		t.Errorf("verdict = %s, want needs_clarification", v.Kind)
	}
	if v.FollowUp != "Did you mean the delivery or the product?" {
		t.Errorf("follow-up = %q", v.FollowUp)
	}
}

func TestClarifyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	svc := NewClarifyService(config.AIConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := svc.Clarify(context.Background(), textQuestion(), "en", "hmm let me think")
	if !errors.Is(err, util.ErrOracleTimeout) {
		t.Fatalf("err = %v, want oracle timeout", err)
	}
}

func TestParseVerdict(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    VerdictKind
	}{
		{"plain", `{"verdict":"accepted","answer":"yes"}`, VerdictAccepted},
		{"fenced", "```json\n{\"verdict\":\"unintelligible\"}\n```", VerdictUnintelligible},
		{"prose wrapped", `The answer seems fine. {"verdict":"accepted","answer":"7"} Hope that helps.`, VerdictAccepted},
		{"garbage", "I could not decide", VerdictUnintelligible},
		{"accepted without answer", `{"verdict":"accepted","answer":""}`, VerdictUnintelligible},
		{"unknown kind", `{"verdict":"maybe"}`, VerdictUnintelligible},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseVerdict(tc.content); got.Kind != tc.want {
				t.Errorf("parseVerdict(%q).Kind = %s, want %s", tc.content, got.Kind, tc.want)
			}
		})
	}
}
