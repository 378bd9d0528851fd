package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/echoline-ai/echoline/internal/responder"
	"github.com/echoline-ai/echoline/internal/session"
	"github.com/echoline-ai/echoline/pkg/response"
)

// Offline testing sessions let operators exercise prompts and
// knowledge bases in text before pointing a phone number at them. They
// live in their own registry with a shorter history cap and no phone
// number requirement.

func (h *Handlers) registerTestingRoutes(r *gin.RouterGroup) {
	testing := r.Group("/testing")
	testing.POST("/chat", h.handleTestChat)
	testing.GET("/sessions", h.handleListTestSessions)
	testing.GET("/sessions/:id", h.handleGetTestSession)
	testing.DELETE("/sessions/:id", h.handleDeleteTestSession)
}

// TestChatRequest is one text turn in an offline session. Omitting
// sessionId starts a new session.
type TestChatRequest struct {
	SessionID       string `json:"sessionId"`
	Message         string `json:"message" binding:"required"`
	KnowledgeBaseID string `json:"knowledgeBaseId"`
	CustomPrompt    string `json:"customPrompt"`
}

func (h *Handlers) handleTestChat(c *gin.Context) {
	var req TestChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", err)
		return
	}

	var s *session.Session
	if req.SessionID != "" {
		var ok bool
		s, ok = h.testRegistry.Lookup(req.SessionID)
		if !ok {
			response.NotFound(c, "test session not found")
			return
		}
	} else {
		if req.KnowledgeBaseID == "" {
			if id, ok := h.index.FirstID(); ok {
				req.KnowledgeBaseID = id
			}
		}
		var err error
		s, err = h.testRegistry.Create(session.CreateSpec{
			KnowledgeBaseID: req.KnowledgeBaseID,
			CustomPrompt:    req.CustomPrompt,
		})
		if err != nil {
			response.Fail(c, "failed to create test session", err)
			return
		}
	}

	snap := s.Snapshot()
	h.testRegistry.AppendTurn(s.CallID, session.RoleUser, req.Message)

	res := h.generator.Generate(c.Request.Context(), responder.Request{
		Message:         req.Message,
		History:         snap.History,
		KnowledgeBaseID: snap.KnowledgeBaseID,
		CustomPrompt:    snap.CustomPrompt,
	})
	h.testRegistry.AppendTurn(s.CallID, session.RoleAssistant, res.Content)

	response.Success(c, "", gin.H{
		"sessionId":            s.CallID,
		"response":             res.Content,
		"modelUsed":            res.ModelUsed,
		"knowledgeBaseUsed":    res.KnowledgeBaseUsed,
		"knowledgeResultCount": res.KnowledgeResultCount,
	})
}

func (h *Handlers) handleListTestSessions(c *gin.Context) {
	sessions := h.testRegistry.Active()
	out := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, gin.H{
			"sessionId":    s.CallID,
			"messageCount": len(s.History),
			"startTime":    s.StartTime,
			"lastActivity": s.LastActivity,
		})
	}
	response.Success(c, "", gin.H{"sessions": out, "count": len(out)})
}

func (h *Handlers) handleGetTestSession(c *gin.Context) {
	s, ok := h.testRegistry.Lookup(c.Param("id"))
	if !ok {
		response.NotFound(c, "test session not found")
		return
	}
	snap := s.Snapshot()
	response.Success(c, "", gin.H{
		"sessionId":       snap.CallID,
		"history":         snap.History,
		"knowledgeBaseId": snap.KnowledgeBaseID,
		"startTime":       snap.StartTime,
	})
}

func (h *Handlers) handleDeleteTestSession(c *gin.Context) {
	if _, err := h.testRegistry.End(c.Param("id")); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			response.NotFound(c, "test session not found")
			return
		}
		response.Internal(c, "failed to delete test session")
		return
	}
	response.Success(c, "test session deleted", nil)
}
