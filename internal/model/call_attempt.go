package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// AttemptStatus is the final status of one call attempt.
type AttemptStatus string

const (
	AttemptCompleted AttemptStatus = "completed"
	AttemptNoAnswer  AttemptStatus = "no_answer"
	AttemptBusy      AttemptStatus = "busy"
	AttemptVoicemail AttemptStatus = "voicemail"
	AttemptDropped   AttemptStatus = "dropped"
	AttemptError     AttemptStatus = "error"
)

// Transient reports whether the attempt outcome is eligible for a retry
// under the backoff policy.
func (s AttemptStatus) Transient() bool {
	switch s {
	case AttemptNoAnswer, AttemptBusy, AttemptVoicemail, AttemptDropped:
		return true
	}
	return false
}

// CallAttempt is one execution of the call state machine against one
// contact. It is owned exclusively by the worker that runs it and becomes
// immutable once handed to the result sink. The (contact_id, attempt_number)
// pair is unique so the sink can persist at-least-once without duplicates.
type CallAttempt struct {
	BaseModel
	SurveyID  uint `gorm:"index;not null" json:"surveyId"`
	ContactID uint `gorm:"not null;uniqueIndex:idx_contact_attempt,priority:1" json:"contactId"`

	SessionID     string `gorm:"size:36;index" json:"sessionId"`
	ProviderSID   string `gorm:"size:255" json:"providerSid"`
	PhoneNumber   string `gorm:"size:20" json:"phoneNumber"`
	AttemptNumber int    `gorm:"not null;uniqueIndex:idx_contact_attempt,priority:2" json:"attemptNumber"`

	Status       AttemptStatus `gorm:"size:50;index" json:"status"`
	ErrorKind    string        `gorm:"size:50" json:"errorKind,omitempty"`
	ErrorMessage string        `gorm:"type:text" json:"errorMessage,omitempty"`
	FailedState  string        `gorm:"size:50" json:"failedState,omitempty"`

	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	QuestionsAsked     int     `gorm:"default:0" json:"questionsAsked"`
	QuestionsAnswered  int     `gorm:"default:0" json:"questionsAnswered"`
	ClarificationsUsed int     `gorm:"default:0" json:"clarificationsUsed"`
	QualityScore       float64 `gorm:"default:0" json:"qualityScore"`

	Turns []TurnRecord `gorm:"foreignKey:AttemptID" json:"turns,omitempty"`
}

func (CallAttempt) TableName() string {
	return "call_attempts"
}

// AbandonReason explains why a turn ended without an accepted answer.
type AbandonReason string

const (
	AbandonSilence              AbandonReason = "silence"
	AbandonClarificationExhaust AbandonReason = "clarification_exhausted"
	AbandonHangup               AbandonReason = "hangup"
	AbandonSkipped              AbandonReason = "skipped"
)

// VerdictList stores the ordered clarification verdicts received for a turn.
type VerdictList []string

func (l VerdictList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *VerdictList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// TurnRecord captures one question-ask/answer-capture cycle. Records within
// an attempt follow the survey question order exactly; an abandoned question
// is recorded, never dropped.
type TurnRecord struct {
	BaseModel
	AttemptID  uint `gorm:"index;not null" json:"attemptId"`
	QuestionID uint `gorm:"index;not null" json:"questionId"`
	TurnOrder  int  `gorm:"not null" json:"turnOrder"`

	Transcript          string      `gorm:"type:text" json:"transcript"`
	Verdicts            VerdictList `gorm:"type:json" json:"verdicts"`
	ClarificationRounds int         `gorm:"default:0" json:"clarificationRounds"`

	Answer        string        `gorm:"type:text" json:"answer"`
	Answered      bool          `gorm:"default:false" json:"answered"`
	AbandonReason AbandonReason `gorm:"size:50" json:"abandonReason,omitempty"`
}

func (TurnRecord) TableName() string {
	return "turn_records"
}
