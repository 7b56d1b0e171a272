package repository

import (
	"errors"

	"voice_survey_backend/internal/model"

	"gorm.io/gorm"
)

type CallAttemptRepository struct {
	DB *gorm.DB
}

func NewCallAttemptRepository(db *gorm.DB) *CallAttemptRepository {
	return &CallAttemptRepository{DB: db}
}

// Save persists a finalized attempt with its turn records. It is idempotent
// on (contact_id, attempt_number) so the result sink can deliver
// at-least-once without duplicating records.
func (r *CallAttemptRepository) Save(attempt *model.CallAttempt) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var existing model.CallAttempt
		err := tx.
			Where("contact_id = ? AND attempt_number = ?", attempt.ContactID, attempt.AttemptNumber).
			First(&existing).Error
		if err == nil {
			// Already delivered.
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(attempt).Error
	})
}

func (r *CallAttemptRepository) FindByID(id uint) (*model.CallAttempt, error) {
	var attempt model.CallAttempt
	err := r.DB.Preload("Turns", func(db *gorm.DB) *gorm.DB {
		return db.Order("turn_order ASC")
	}).First(&attempt, id).Error
	return &attempt, err
}

func (r *CallAttemptRepository) FindByContact(contactID uint) ([]*model.CallAttempt, error) {
	var attempts []*model.CallAttempt
	err := r.DB.Preload("Turns", func(db *gorm.DB) *gorm.DB {
		return db.Order("turn_order ASC")
	}).
		Where("contact_id = ?", contactID).
		Order("attempt_number ASC").
		Find(&attempts).Error
	return attempts, err
}

func (r *CallAttemptRepository) FindBySurvey(surveyID uint, page, limit int) ([]*model.CallAttempt, int64, error) {
	var attempts []*model.CallAttempt
	var total int64

	query := r.DB.Model(&model.CallAttempt{}).Where("survey_id = ?", surveyID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&attempts).Error
	return attempts, total, err
}
