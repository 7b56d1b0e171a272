package controller

import (
	"net/http"

	"voice_survey_backend/internal/service"
	"voice_survey_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookController receives the telephony provider's callbacks and feeds
// them into the open call channels. These endpoints answer fast and never
// block on call logic; the waiting worker goroutine does the work.
type WebhookController struct {
	Gateway *service.TwilioGateway
}

func NewWebhookController(gateway *service.TwilioGateway) *WebhookController {
	return &WebhookController{Gateway: gateway}
}

// StatusCallback handles call status transitions (ringing, answered, busy,
// completed) posted by the provider.
func (c *WebhookController) StatusCallback(ctx *gin.Context) {
	callSID := ctx.PostForm("CallSid")
	status := ctx.PostForm("CallStatus")
	answeredBy := ctx.PostForm("AnsweredBy")

	if callSID == "" {
		ctx.Status(http.StatusBadRequest)
		return
	}

	logger.Log.Debug("status callback",
		zap.String("callSid", callSID),
		zap.String("status", status),
		zap.String("answeredBy", answeredBy))

	c.Gateway.HandleStatusCallback(callSID, status, answeredBy)
	ctx.Status(http.StatusOK)
}

// Gather handles a captured speech transcript.
func (c *WebhookController) Gather(ctx *gin.Context) {
	callSID := ctx.PostForm("CallSid")
	transcript := ctx.PostForm("SpeechResult")

	if callSID == "" {
		ctx.Status(http.StatusBadRequest)
		return
	}

	c.Gateway.HandleGather(callSID, transcript)

	// The next verb arrives over the REST API; keep the leg open meanwhile.
	ctx.Data(http.StatusOK, "application/xml",
		[]byte(`<?xml version="1.0" encoding="UTF-8"?><Response><Pause length="30"/></Response>`))
}

// Answer is the initial TwiML fetched when the callee picks up. The call flow
// itself is pushed turn by turn through call updates, so this only parks the
// call until the first prompt lands.
func (c *WebhookController) Answer(ctx *gin.Context) {
	ctx.Data(http.StatusOK, "application/xml",
		[]byte(`<?xml version="1.0" encoding="UTF-8"?><Response><Pause length="60"/></Response>`))
}
