package repository

import (
	"voice_survey_backend/internal/model"

	"gorm.io/gorm"
)

type SurveyRepository struct {
	DB *gorm.DB
}

func NewSurveyRepository(db *gorm.DB) *SurveyRepository {
	return &SurveyRepository{DB: db}
}

func (r *SurveyRepository) FindByID(id uint) (*model.Survey, error) {
	var survey model.Survey
	err := model.SurveyPreload(r.DB).First(&survey, id).Error
	return &survey, err
}

// FindActive returns surveys eligible for dialing, questions preloaded in
// ask order.
func (r *SurveyRepository) FindActive() ([]*model.Survey, error) {
	var surveys []*model.Survey
	err := model.SurveyPreload(r.DB).
		Where("status = ?", model.SurveyActive).
		Find(&surveys).Error
	return surveys, err
}

func (r *SurveyRepository) UpdateStatus(id uint, status model.SurveyStatus) error {
	return r.DB.Model(&model.Survey{}).
		Where("id = ?", id).
		Update("status", status).
		Error
}

func (r *SurveyRepository) Create(survey *model.Survey) error {
	return r.DB.Create(survey).Error
}
