package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/echoline-ai/echoline/internal/knowledge"
	"github.com/echoline-ai/echoline/pkg/response"
)

func (h *Handlers) registerKnowledgeRoutes(r *gin.RouterGroup) {
	kb := r.Group("/knowledge/bases")
	kb.POST("", h.handleCreateKnowledgeBase)
	kb.GET("", h.handleListKnowledgeBases)
	kb.GET("/:id", h.handleGetKnowledgeBase)
	kb.DELETE("/:id", h.handleDeleteKnowledgeBase)
	kb.POST("/:id/documents", h.handleAddDocument)
	kb.POST("/:id/query", h.handleQueryKnowledgeBase)
}

// CreateKnowledgeBaseRequest creates a base with its initial documents.
type CreateKnowledgeBaseRequest struct {
	Name        string                    `json:"name" binding:"required"`
	Description string                    `json:"description"`
	Documents   []knowledge.DocumentInput `json:"documents"`
}

func (h *Handlers) handleCreateKnowledgeBase(c *gin.Context) {
	var req CreateKnowledgeBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", err)
		return
	}

	kb, err := h.index.Create(req.Name, req.Description, req.Documents)
	if err != nil {
		response.Fail(c, "failed to create knowledge base", err)
		return
	}
	response.Success(c, "knowledge base created", kb)
}

func (h *Handlers) handleListKnowledgeBases(c *gin.Context) {
	response.Success(c, "", gin.H{"knowledgeBases": h.index.List()})
}

func (h *Handlers) handleGetKnowledgeBase(c *gin.Context) {
	kb, ok := h.index.Get(c.Param("id"))
	if !ok {
		response.NotFound(c, "knowledge base not found")
		return
	}
	response.Success(c, "", kb)
}

func (h *Handlers) handleDeleteKnowledgeBase(c *gin.Context) {
	if !h.index.Delete(c.Param("id")) {
		response.NotFound(c, "knowledge base not found")
		return
	}
	response.Success(c, "knowledge base deleted", nil)
}

func (h *Handlers) handleAddDocument(c *gin.Context) {
	var req knowledge.DocumentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", err)
		return
	}
	doc, err := h.index.AddDocument(c.Param("id"), req)
	if err != nil {
		response.Fail(c, "failed to add document", err)
		return
	}
	response.Success(c, "document added", doc)
}

// QueryRequest runs a retrieval query against one base.
type QueryRequest struct {
	Query      string `json:"query" binding:"required"`
	MaxResults int    `json:"maxResults"`
}

func (h *Handlers) handleQueryKnowledgeBase(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request body", err)
		return
	}
	results := h.index.Query(c.Param("id"), req.Query, req.MaxResults)
	response.Success(c, "", gin.H{"results": results, "count": len(results)})
}
