package model

// QuestionType describes what shape of answer a question expects.
type QuestionType string

const (
	QuestionText           QuestionType = "text"
	QuestionYesNo          QuestionType = "yes_no"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionNumeric        QuestionType = "numeric"
	QuestionRating         QuestionType = "rating"
)

type Question struct {
	BaseModel
	SurveyID uint `gorm:"index;not null" json:"surveyId"`

	Text         string       `gorm:"type:text;not null" json:"text"`
	Translations JSONMap      `gorm:"type:json" json:"translations"`
	Type         QuestionType `gorm:"size:50;not null;default:'text'" json:"type"`

	OrderNumber int  `gorm:"not null;index" json:"orderNumber"`
	IsRequired  bool `gorm:"default:true" json:"isRequired"`

	Options             JSONList `gorm:"type:json" json:"options"`
	OptionsTranslations JSONMap  `gorm:"type:json" json:"optionsTranslations"`

	ClarificationEnabled bool    `gorm:"default:true" json:"clarificationEnabled"`
	ClarificationPrompts JSONMap `gorm:"type:json" json:"clarificationPrompts"`
}

func (Question) TableName() string {
	return "questions"
}

// PromptText returns the question text in the requested language, falling
// back to the default text.
func (q *Question) PromptText(language string) string {
	if q.Translations != nil {
		if text, ok := q.Translations[language]; ok && text != "" {
			return text
		}
	}
	return q.Text
}

// ClarificationPrompt returns a per-question follow-up prompt for the
// language, empty when none is configured (the oracle then generates one).
func (q *Question) ClarificationPrompt(language string) string {
	if q.ClarificationPrompts == nil {
		return ""
	}
	return q.ClarificationPrompts[language]
}
