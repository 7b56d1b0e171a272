package model

import (
	"encoding/json"
	"time"
)

type ContactStatus string

const (
	ContactPending    ContactStatus = "pending"
	ContactInProgress ContactStatus = "in_progress"
	ContactCompleted  ContactStatus = "completed"
	ContactFailed     ContactStatus = "failed"
	ContactDoNotCall  ContactStatus = "do_not_call"
)

// Contact status is mutated by both the scheduler and the worker owning the
// active attempt; ownership transfers atomically at dispatch and completion.
type Contact struct {
	BaseModel
	SurveyID uint `gorm:"index;not null" json:"surveyId"`

	PhoneNumber       string `gorm:"size:20;not null" json:"phoneNumber"`
	Name              string `gorm:"size:255" json:"name"`
	PreferredLanguage string `gorm:"size:10;default:'en'" json:"preferredLanguage"`

	// Extra columns carried over from CSV import, opaque to the dialer.
	AdditionalData json.RawMessage `gorm:"type:json" json:"additionalData,omitempty"`

	Status           ContactStatus `gorm:"size:50;index;default:'pending'" json:"status"`
	CallAttempts     int           `gorm:"default:0" json:"callAttempts"`
	LastCallAt       *time.Time    `json:"lastCallAt,omitempty"`
	NextEligibleAt   *time.Time    `gorm:"index" json:"nextEligibleAt,omitempty"`
	LastCallResult   string        `gorm:"size:50" json:"lastCallResult"`
	DetectedLanguage string        `gorm:"size:10" json:"detectedLanguage"`
}

func (Contact) TableName() string {
	return "contacts"
}
