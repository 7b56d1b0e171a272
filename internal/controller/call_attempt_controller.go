package controller

import (
	"errors"
	"strconv"

	"voice_survey_backend/internal/repository"
	"voice_survey_backend/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CallAttemptController is the read-only view over recorded attempts and
// their turn records.
type CallAttemptController struct {
	Attempts *repository.CallAttemptRepository
}

func NewCallAttemptController(attempts *repository.CallAttemptRepository) *CallAttemptController {
	return &CallAttemptController{Attempts: attempts}
}

func (c *CallAttemptController) GetAttempt(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "Invalid attempt ID")
		return
	}

	attempt, err := c.Attempts.FindByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, attempt)
}

// ListByContact returns every attempt for a contact, turns included, in
// attempt order.
func (c *CallAttemptController) ListByContact(ctx *gin.Context) {
	contactID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "Invalid contact ID")
		return
	}

	attempts, err := c.Attempts.FindByContact(uint(contactID))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}

// ListBySurvey returns a page of attempts for a survey, newest first.
func (c *CallAttemptController) ListBySurvey(ctx *gin.Context) {
	surveyID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "Invalid survey ID")
		return
	}

	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	attempts, total, err := c.Attempts.FindBySurvey(uint(surveyID), page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{
		List:  attempts,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}
