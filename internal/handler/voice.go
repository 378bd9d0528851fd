package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/echoline-ai/echoline/internal/dialog"
	"github.com/echoline-ai/echoline/internal/responder"
	"github.com/echoline-ai/echoline/internal/telephony"
	"github.com/echoline-ai/echoline/pkg/response"
)

func (h *Handlers) registerVoiceRoutes(r *gin.RouterGroup) {
	voice := r.Group("/voice")
	voice.POST("/generate-response", h.handleGenerateResponse)
	voice.POST("/transcribe", h.handleTranscribe)
	voice.POST("/synthesize", h.handleSynthesize)
}

// GenerateResponseRequest runs the full retrieval + model pipeline on
// one message without a session, for prompt debugging.
type GenerateResponseRequest struct {
	Message         string `json:"message" binding:"required"`
	KnowledgeBaseID string `json:"knowledgeBaseId"`
	CustomPrompt    string `json:"customPrompt"`
}

func (h *Handlers) handleGenerateResponse(c *gin.Context) {
	var req GenerateResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", err)
		return
	}
	res := h.generator.Generate(c.Request.Context(), responder.Request{
		Message:         req.Message,
		KnowledgeBaseID: req.KnowledgeBaseID,
		CustomPrompt:    req.CustomPrompt,
	})
	response.Success(c, "", res)
}

// TranscribeRequest submits an audio URL for synchronous
// transcription.
type TranscribeRequest struct {
	AudioURL string `json:"audioUrl" binding:"required"`
}

func (h *Handlers) handleTranscribe(c *gin.Context) {
	var req TranscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", err)
		return
	}

	job, err := h.speech.SubmitTranscription(c.Request.Context(), req.AudioURL, "")
	if err != nil {
		response.FailWithStatus(c, 502, "transcription submit failed", err)
		return
	}
	tr, err := h.speech.WaitForTranscription(c.Request.Context(), job.ID, 2*time.Second)
	if err != nil {
		response.FailWithStatus(c, 502, "transcription failed", err)
		return
	}
	response.Success(c, "", gin.H{"transcriptId": tr.ID, "text": tr.Text})
}

// SynthesizeRequest previews how a line will be spoken by returning
// the TwiML the provider would execute for it.
type SynthesizeRequest struct {
	Text  string `json:"text" binding:"required"`
	Voice string `json:"voice"`
}

func (h *Handlers) handleSynthesize(c *gin.Context) {
	var req SynthesizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", err)
		return
	}
	doc, err := telephony.RenderTwiML(dialog.Instruction{Say: req.Text}, req.Voice)
	if err != nil {
		response.Internal(c, "failed to render speech document")
		return
	}
	response.Success(c, "", gin.H{"twiml": doc})
}
