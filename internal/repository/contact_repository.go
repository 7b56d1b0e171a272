package repository

import (
	"time"

	"voice_survey_backend/internal/model"

	"gorm.io/gorm"
)

type ContactRepository struct {
	DB *gorm.DB
}

func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{DB: db}
}

func (r *ContactRepository) Create(contact *model.Contact) error {
	return r.DB.Create(contact).Error
}

func (r *ContactRepository) FindByID(id uint) (*model.Contact, error) {
	var contact model.Contact
	err := r.DB.First(&contact, id).Error
	return &contact, err
}

// FindEligible returns pending contacts for the survey whose retry cool-down
// has elapsed, oldest first.
func (r *ContactRepository) FindEligible(surveyID uint, limit int) ([]*model.Contact, error) {
	var contacts []*model.Contact
	err := r.DB.
		Where("survey_id = ? AND status = ?", surveyID, model.ContactPending).
		Where("next_eligible_at IS NULL OR next_eligible_at <= ?", time.Now()).
		Order("next_eligible_at ASC, id ASC").
		Limit(limit).
		Find(&contacts).Error
	return contacts, err
}

// Claim transfers ownership of a contact to a worker. The conditional update
// keeps the single-writer rule: only one actor wins the pending row, and the
// scheduler never touches the contact again until the worker releases it.
func (r *ContactRepository) Claim(contactID uint) (bool, error) {
	res := r.DB.Model(&model.Contact{}).
		Where("id = ? AND status = ?", contactID, model.ContactPending).
		Update("status", model.ContactInProgress)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Release writes the worker's final view of the contact and hands ownership
// back to the scheduler.
func (r *ContactRepository) Release(contact *model.Contact) error {
	return r.DB.Model(&model.Contact{}).
		Where("id = ?", contact.ID).
		Updates(map[string]interface{}{
			"status":            contact.Status,
			"call_attempts":     contact.CallAttempts,
			"last_call_at":      contact.LastCallAt,
			"next_eligible_at":  contact.NextEligibleAt,
			"last_call_result":  contact.LastCallResult,
			"detected_language": contact.DetectedLanguage,
		}).Error
}

func (r *ContactRepository) UpdateStatus(id uint, status model.ContactStatus, nextEligibleAt *time.Time) error {
	return r.DB.Model(&model.Contact{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           status,
			"next_eligible_at": nextEligibleAt,
		}).Error
}

func (r *ContactRepository) CountByStatus(surveyID uint, status model.ContactStatus) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Contact{}).
		Where("survey_id = ? AND status = ?", surveyID, status).
		Count(&count).Error
	return count, err
}
