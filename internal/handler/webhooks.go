package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/echoline-ai/echoline/internal/dialog"
	"github.com/echoline-ai/echoline/internal/speech"
	"github.com/echoline-ai/echoline/internal/telephony"
	"github.com/echoline-ai/echoline/pkg/config"
	"github.com/echoline-ai/echoline/pkg/logger"
	"github.com/echoline-ai/echoline/pkg/middleware"
	"github.com/echoline-ai/echoline/pkg/response"
)

// Webhooks carry no API key. The telephony provider signs nothing we
// can predistribute, so these endpoints validate shape instead and the
// speech webhook optionally checks an HMAC signature.

func (h *Handlers) registerWebhookRoutes(r *gin.RouterGroup) {
	r.POST("/twilio/voice", h.handleVoiceWebhook)
	r.GET("/twilio/voice", h.handleVoiceWebhook)
	r.POST("/twilio/gather", h.handleGatherWebhook)
	r.GET("/twilio/gather", h.handleGatherWebhook)
	r.POST("/assemblyai", h.handleTranscriptWebhook)
}

// webhookParam reads a Twilio parameter from the form body (POST) or
// the query string (GET).
func webhookParam(c *gin.Context, name string) string {
	if v := c.PostForm(name); v != "" {
		return v
	}
	return c.Query(name)
}

var terminalCallStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
	"busy":      true,
	"no-answer": true,
	"canceled":  true,
}

// handleVoiceWebhook receives both the initial answer request and
// status callbacks for a call.
func (h *Handlers) handleVoiceWebhook(c *gin.Context) {
	callID := c.Query("callId")
	sid := webhookParam(c, "CallSid")
	status := webhookParam(c, "CallStatus")

	if terminalCallStatuses[status] {
		h.controller.HandleStatus(callID, sid, status)
		c.Status(http.StatusOK)
		return
	}

	in := h.controller.Greet(callID, sid)
	h.renderTwiML(c, in, callID)
}

// handleGatherWebhook receives the caller's recognized speech or DTMF
// digits and drives the turn loop.
func (h *Handlers) handleGatherWebhook(c *gin.Context) {
	callID := c.Query("callId")
	sid := webhookParam(c, "CallSid")
	speechResult := webhookParam(c, "SpeechResult")
	digits := webhookParam(c, "Digits")

	in := h.controller.HandleInput(c.Request.Context(), callID, sid, speechResult, digits)
	h.renderTwiML(c, in, callID)
}

func (h *Handlers) renderTwiML(c *gin.Context, in dialog.Instruction, callID string) {
	doc, err := telephony.RenderTwiML(in, h.voiceFor(callID))
	if err != nil {
		logger.Error("TwiML rendering failed",
			zap.String("callId", callID),
			zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/xml", []byte(doc))
}

func (h *Handlers) voiceFor(callID string) string {
	if callID == "" {
		return ""
	}
	s, ok := h.registry.Lookup(callID)
	if !ok {
		return ""
	}
	return s.Snapshot().Voice.Model
}

// TranscriptWebhook is the speech provider's completion callback.
type TranscriptWebhook struct {
	TranscriptID string `json:"transcript_id"`
	Status       string `json:"status"`
	Text         string `json:"text"`
}

// handleTranscriptWebhook feeds completed transcripts into the turn
// loop. Anything not completed, or completed with empty text, is
// acknowledged and dropped.
func (h *Handlers) handleTranscriptWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Fail(c, "unreadable body", err)
		return
	}

	if secret := config.GlobalConfig.WebhookSecret; secret != "" {
		sig := c.GetHeader("X-Signature")
		if !middleware.VerifyWebhookSignature(body, sig, secret) {
			response.FailWithStatus(c, http.StatusUnauthorized, "bad webhook signature", nil)
			return
		}
	}

	var payload TranscriptWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		response.Fail(c, "invalid payload", err)
		return
	}

	callID := c.Query("callId")
	if payload.Status != speech.StatusCompleted || payload.Text == "" {
		logger.Debug("Transcript webhook ignored",
			zap.String("callId", callID),
			zap.String("status", payload.Status))
		response.Success(c, "ignored", nil)
		return
	}

	in := h.controller.HandleInput(c.Request.Context(), callID, "", payload.Text, "")
	response.Success(c, "", gin.H{"reply": in.Say})
}
