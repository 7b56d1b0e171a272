package controller

import (
	"errors"
	"net/http"
	"strconv"

	"voice_survey_backend/internal/model"
	"voice_survey_backend/internal/repository"
	"voice_survey_backend/internal/service"
	"voice_survey_backend/internal/util"
	"voice_survey_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DialerController exposes the dialing controls: activate or pause a survey
// and inspect the pool.
type DialerController struct {
	Dialer     *service.DialerService
	SurveyRepo *repository.SurveyRepository
	Contacts   *repository.ContactRepository
}

func NewDialerController(dialer *service.DialerService, surveyRepo *repository.SurveyRepository, contacts *repository.ContactRepository) *DialerController {
	return &DialerController{
		Dialer:     dialer,
		SurveyRepo: surveyRepo,
		Contacts:   contacts,
	}
}

// StartSurvey marks the survey active; the scheduler picks it up on the next
// tick.
func (c *DialerController) StartSurvey(ctx *gin.Context) {
	survey, ok := c.loadSurvey(ctx)
	if !ok {
		return
	}
	if survey.Status == model.SurveyActive {
		util.Conflict(ctx, "Survey is already active")
		return
	}
	if len(survey.Questions) == 0 {
		util.BadRequest(ctx, "Survey has no questions")
		return
	}

	if err := c.SurveyRepo.UpdateStatus(survey.ID, model.SurveyActive); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	logger.Log.Info("Survey activated", zap.Uint("surveyId", survey.ID))
	util.Success(ctx, gin.H{"surveyId": survey.ID, "status": model.SurveyActive})
}

// PauseSurvey stops dispatching for the survey and drains its in-flight
// calls. Pending contacts keep their place for a later resume.
func (c *DialerController) PauseSurvey(ctx *gin.Context) {
	survey, ok := c.loadSurvey(ctx)
	if !ok {
		return
	}
	if survey.Status != model.SurveyActive {
		util.Conflict(ctx, "Survey is not active")
		return
	}

	if err := c.SurveyRepo.UpdateStatus(survey.ID, model.SurveyPaused); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	c.Dialer.PauseSurvey(survey.ID)
	util.Success(ctx, gin.H{"surveyId": survey.ID, "status": model.SurveyPaused})
}

// Status reports the pool snapshot plus per-status contact counts when a
// surveyId query parameter is present.
func (c *DialerController) Status(ctx *gin.Context) {
	status := c.Dialer.Status()
	resp := gin.H{
		"running":            status.Running,
		"activeCalls":        status.ActiveCalls,
		"maxConcurrentCalls": status.MaxConcurrentCalls,
	}

	if raw := ctx.Query("surveyId"); raw != "" {
		surveyID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			util.BadRequest(ctx, "Invalid surveyId")
			return
		}
		counts := gin.H{}
		for _, s := range []model.ContactStatus{
			model.ContactPending, model.ContactInProgress, model.ContactCompleted,
			model.ContactFailed, model.ContactDoNotCall,
		} {
			n, err := c.Contacts.CountByStatus(uint(surveyID), s)
			if err != nil {
				util.LogInternalError(ctx, err)
				return
			}
			counts[string(s)] = n
		}
		resp["contacts"] = counts
	}

	util.Success(ctx, resp)
}

func (c *DialerController) loadSurvey(ctx *gin.Context) (*model.Survey, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "Invalid survey ID")
		return nil, false
	}
	survey, err := c.SurveyRepo.FindByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.NotFound(ctx)
		} else {
			util.Error(ctx, http.StatusInternalServerError, "Failed to load survey")
		}
		return nil, false
	}
	return survey, true
}
