package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"voice_survey_backend/internal/config"
	"voice_survey_backend/internal/model"
	"voice_survey_backend/internal/util"
)

// VerdictKind is the oracle's decision about a transcribed answer.
type VerdictKind string

const (
	VerdictAccepted           VerdictKind = "accepted"
	VerdictNeedsClarification VerdictKind = "needs_clarification"
	VerdictUnintelligible     VerdictKind = "unintelligible"
)

// Verdict carries the accepted answer or the follow-up prompt to play.
type Verdict struct {
	Kind     VerdictKind
	Answer   string
	FollowUp string
}

// ClarificationOracle decides whether a transcript satisfies a question.
// Implementations must resolve within a bounded time or return
// util.ErrOracleTimeout; the call runner treats a timeout as an
// unintelligible turn.
type ClarificationOracle interface {
	Clarify(ctx context.Context, question *model.Question, language, transcript string) (Verdict, error)
}

// ClarifyService implements ClarificationOracle against an OpenAI-compatible
// chat completions endpoint. Structured answers (yes/no, numeric, choice)
// are resolved locally first so the model is only consulted for genuinely
// ambiguous input.
type ClarifyService struct {
	config config.AIConfig
	client *http.Client
}

func NewClarifyService(cfg config.AIConfig) *ClarifyService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &ClarifyService{
		config: cfg,
		client: &http.Client{},
	}
}

type aiChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string          `json:"model"`
	Messages []aiChatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message aiChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type verdictPayload struct {
	Verdict  string `json:"verdict"`
	Answer   string `json:"answer"`
	FollowUp string `json:"follow_up"`
}

func (s *ClarifyService) Clarify(ctx context.Context, question *model.Question, language, transcript string) (Verdict, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return Verdict{Kind: VerdictUnintelligible}, nil
	}

	if v, ok := resolveLocally(question, transcript); ok {
		return v, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	verdict, err := s.ask(ctx, question, language, transcript)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Verdict{}, util.ErrOracleTimeout
		}
		return Verdict{}, err
	}
	return verdict, nil
}

func (s *ClarifyService) ask(ctx context.Context, question *model.Question, language, transcript string) (Verdict, error) {
	prompt := buildClarificationPrompt(question, language, transcript)

	messages := []aiChatMessage{
		{
			Role: "system",
			Content: "You are an assistant that judges spoken survey answers. " +
				"Respond with a single JSON object and nothing else: " +
				`{"verdict":"accepted|needs_clarification|unintelligible","answer":"...","follow_up":"..."}. ` +
				"Use \"answer\" only with an accepted verdict and \"follow_up\" only when clarification is needed. " +
				"Keep the follow-up question in the respondent's language.",
		},
		{Role: "user", Content: prompt},
	}

	reqBody := chatCompletionRequest{
		Model:    s.config.Model,
		Messages: messages,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return Verdict{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return Verdict{}, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return Verdict{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("AI API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return Verdict{}, err
	}
	if len(result.Choices) == 0 {
		return Verdict{}, fmt.Errorf("AI returned no choices")
	}

	return parseVerdict(result.Choices[0].Message.Content), nil
}

func buildClarificationPrompt(question *model.Question, language, transcript string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", question.PromptText(language))
	fmt.Fprintf(&b, "Question type: %s\n", question.Type)
	fmt.Fprintf(&b, "Language: %s\n", language)
	if len(question.Options) > 0 {
		fmt.Fprintf(&b, "Valid options: %s\n", strings.Join(question.Options, ", "))
	}
	fmt.Fprintf(&b, "Transcribed answer: %q\n\n", transcript)
	b.WriteString("Decide whether the answer satisfies the question. " +
		"If it clearly does, accept it and return a cleaned-up answer. " +
		"If it is ambiguous or incomplete, ask one short follow-up question. " +
		"If it is noise or unrelated speech, mark it unintelligible.")
	return b.String()
}

// parseVerdict is lenient about the model wrapping the JSON object in prose
// or code fences; anything unparseable counts as unintelligible.
func parseVerdict(content string) Verdict {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			content = content[start : end+1]
		}
	}

	var payload verdictPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return Verdict{Kind: VerdictUnintelligible}
	}

	switch VerdictKind(payload.Verdict) {
	case VerdictAccepted:
		answer := strings.TrimSpace(payload.Answer)
		if answer == "" {
			return Verdict{Kind: VerdictUnintelligible}
		}
		return Verdict{Kind: VerdictAccepted, Answer: answer}
	case VerdictNeedsClarification:
		return Verdict{Kind: VerdictNeedsClarification, FollowUp: strings.TrimSpace(payload.FollowUp)}
	case VerdictUnintelligible:
		return Verdict{Kind: VerdictUnintelligible}
	default:
		return Verdict{Kind: VerdictUnintelligible}
	}
}

var yesWords = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "sure": true, "correct": true,
	"haan": true, "ha": true, "ji": true, "ji haan": true,
}

var noWords = map[string]bool{
	"no": true, "nope": true, "nah": true, "never": true,
	"nahi": true, "nahin": true, "na": true,
}

// resolveLocally settles structured answers without an AI round trip.
func resolveLocally(question *model.Question, transcript string) (Verdict, bool) {
	normalized := strings.ToLower(strings.TrimSpace(transcript))
	normalized = strings.Trim(normalized, ".!?,")

	switch question.Type {
	case model.QuestionYesNo:
		if yesWords[normalized] {
			return Verdict{Kind: VerdictAccepted, Answer: "yes"}, true
		}
		if noWords[normalized] {
			return Verdict{Kind: VerdictAccepted, Answer: "no"}, true
		}
	case model.QuestionNumeric, model.QuestionRating:
		if _, err := strconv.ParseFloat(normalized, 64); err == nil {
			return Verdict{Kind: VerdictAccepted, Answer: normalized}, true
		}
	case model.QuestionMultipleChoice:
		for i, option := range question.Options {
			lower := strings.ToLower(option)
			if normalized == lower || normalized == strconv.Itoa(i+1) {
				return Verdict{Kind: VerdictAccepted, Answer: option}, true
			}
		}
	}
	return Verdict{}, false
}
