package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/echoline-ai/echoline/internal/session"
	"github.com/echoline-ai/echoline/internal/telephony"
	"github.com/echoline-ai/echoline/pkg/logger"
	"github.com/echoline-ai/echoline/pkg/response"
)

func (h *Handlers) registerCallRoutes(r *gin.RouterGroup) {
	calls := r.Group("/calls")
	calls.POST("/initiate", h.handleInitiateCall)
	calls.GET("/active", h.handleActiveCalls)
	calls.GET("/:callId/status", h.handleCallStatus)
	calls.POST("/:callId/end", h.handleEndCall)
}

// InitiateCallRequest is the management request to place a call.
type InitiateCallRequest struct {
	PhoneNumber     string              `json:"phoneNumber" binding:"required"`
	KnowledgeBaseID string              `json:"knowledgeBaseId"`
	CustomPrompt    string              `json:"customPrompt"`
	Voice           session.VoiceConfig `json:"voiceConfig"`
}

func (h *Handlers) handleInitiateCall(c *gin.Context) {
	var req InitiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", err)
		return
	}

	// A call without an explicit knowledge base uses the oldest one, so
	// freshly provisioned operators get retrieval without extra setup.
	if req.KnowledgeBaseID == "" {
		if id, ok := h.index.FirstID(); ok {
			req.KnowledgeBaseID = id
		}
	} else if _, ok := h.index.Get(req.KnowledgeBaseID); !ok {
		response.NotFound(c, "knowledge base not found")
		return
	}

	s, err := h.registry.Create(session.CreateSpec{
		PhoneNumber:     req.PhoneNumber,
		KnowledgeBaseID: req.KnowledgeBaseID,
		CustomPrompt:    req.CustomPrompt,
		Voice:           req.Voice,
	})
	if err != nil {
		response.Fail(c, "invalid call specification", err)
		return
	}

	sid, err := h.gateway.PlaceCall(s.PhoneNumber, s.CallID)
	if err != nil {
		logger.Error("Placing call failed",
			zap.String("callId", s.CallID),
			zap.Error(err))
		if _, endErr := h.registry.End(s.CallID); endErr != nil {
			logger.Warn("Cleanup after failed placement", zap.Error(endErr))
		}
		response.FailWithStatus(c, 502, "failed to place call", errors.Unwrap(err))
		return
	}

	if _, err := h.registry.AttachProviderID(s.CallID, sid); err != nil {
		logger.Error("Attaching provider sid failed",
			zap.String("callId", s.CallID),
			zap.Error(err))
	}

	response.Success(c, "call initiated", gin.H{
		"callId":          s.CallID,
		"providerCallId":  sid,
		"status":          s.Snapshot().Status,
		"knowledgeBaseId": req.KnowledgeBaseID,
	})
}

func (h *Handlers) handleCallStatus(c *gin.Context) {
	s, ok := h.registry.Lookup(c.Param("callId"))
	if !ok {
		response.NotFound(c, "call not found")
		return
	}

	stats := s.Stats()
	out := gin.H{
		"callId":       stats.CallID,
		"status":       stats.Status,
		"duration":     stats.Duration.Seconds(),
		"messageCount": stats.MessageCount,
		"startTime":    stats.StartTime,
	}
	if stats.EndTime != nil {
		out["endTime"] = stats.EndTime
	}

	snap := s.Snapshot()
	if snap.ProviderCallID != "" && h.gateway != nil {
		if providerStatus, err := h.gateway.CallStatus(snap.ProviderCallID); err == nil {
			out["providerStatus"] = providerStatus
		}
	}
	if c.Query("summary") == "true" && len(snap.History) > 0 {
		out["summary"] = h.generator.Summarize(c.Request.Context(), snap.History)
	}
	response.Success(c, "", out)
}

func (h *Handlers) handleEndCall(c *gin.Context) {
	callID := c.Param("callId")
	s, err := h.registry.End(callID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			response.NotFound(c, "call not found")
			return
		}
		response.Internal(c, "failed to end call")
		return
	}

	snap := s.Snapshot()
	if snap.ProviderCallID != "" {
		if err := h.gateway.EndCall(snap.ProviderCallID); err != nil {
			// The session is already ended locally; the provider call
			// will terminate on its own when the far end hangs up.
			if errors.Is(err, telephony.ErrUpstreamUnavailable) {
				logger.Warn("Provider hangup failed",
					zap.String("callId", callID),
					zap.Error(err))
			}
		}
	}
	response.Success(c, "call ended", gin.H{"callId": callID})
}

func (h *Handlers) handleActiveCalls(c *gin.Context) {
	active := h.registry.Active()
	out := make([]gin.H, 0, len(active))
	for _, s := range active {
		out = append(out, gin.H{
			"callId":       s.CallID,
			"phoneNumber":  s.PhoneNumber,
			"status":       s.Status,
			"startTime":    s.StartTime,
			"lastActivity": s.LastActivity,
			"messageCount": len(s.History),
		})
	}
	response.Success(c, "", gin.H{"calls": out, "count": len(out)})
}
