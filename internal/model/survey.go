package model

import (
	"time"

	"gorm.io/gorm"
)

type SurveyStatus string

const (
	SurveyDraft     SurveyStatus = "draft"
	SurveyActive    SurveyStatus = "active"
	SurveyPaused    SurveyStatus = "paused"
	SurveyCompleted SurveyStatus = "completed"
)

// Survey is owned by the CRUD subsystem; the dialer only reads it.
type Survey struct {
	BaseModel
	Title       string       `gorm:"size:255;not null" json:"title"`
	Description string       `gorm:"type:text" json:"description"`
	Status      SurveyStatus `gorm:"size:50;index;default:'draft'" json:"status"`

	PrimaryLanguage    string     `gorm:"size:10;default:'en'" json:"primaryLanguage"`
	SupportedLanguages JSONList   `gorm:"type:json" json:"supportedLanguages"`
	Questions          []Question `gorm:"foreignKey:SurveyID" json:"questions,omitempty"`

	// Greeting / closing remarks keyed by language code. Empty map falls
	// back to the built-in localized messages.
	GreetingTranslations JSONMap `gorm:"type:json" json:"greetingTranslations"`
	ClosingTranslations  JSONMap `gorm:"type:json" json:"closingTranslations"`

	// Per-survey retry policy; zero values fall back to the global dialer
	// config.
	RetryAttempts int `gorm:"default:0" json:"retryAttempts"`
	RetryInterval int `gorm:"default:0" json:"retryInterval"` // hours

	ClarificationEnabled bool       `gorm:"default:true" json:"clarificationEnabled"`
	ScheduledAt          *time.Time `json:"scheduledAt,omitempty"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
}

func (Survey) TableName() string {
	return "surveys"
}

// Greeting returns the survey greeting for the given language, falling back
// to the primary language and then to any configured greeting.
func (s *Survey) Greeting(language string) string {
	if s.GreetingTranslations == nil {
		return ""
	}
	if text, ok := s.GreetingTranslations[language]; ok {
		return text
	}
	if text, ok := s.GreetingTranslations[s.PrimaryLanguage]; ok {
		return text
	}
	return ""
}

func (s *Survey) Closing(language string) string {
	if s.ClosingTranslations == nil {
		return ""
	}
	if text, ok := s.ClosingTranslations[language]; ok {
		return text
	}
	if text, ok := s.ClosingTranslations[s.PrimaryLanguage]; ok {
		return text
	}
	return ""
}

// OrderedQuestions returns the survey questions sorted by order number.
// Call attempt turn records must follow this ordering exactly.
func (s *Survey) OrderedQuestions() []Question {
	qs := make([]Question, len(s.Questions))
	copy(qs, s.Questions)
	for i := 1; i < len(qs); i++ {
		for j := i; j > 0 && qs[j].OrderNumber < qs[j-1].OrderNumber; j-- {
			qs[j], qs[j-1] = qs[j-1], qs[j]
		}
	}
	return qs
}

func SurveyPreload(db *gorm.DB) *gorm.DB {
	return db.Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("order_number ASC")
	})
}
