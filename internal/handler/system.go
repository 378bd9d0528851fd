package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/echoline-ai/echoline/pkg/response"
)

var startedAt = time.Now()

func (h *Handlers) registerSystemRoutes(engine *gin.Engine) {
	engine.GET("/health", h.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (h *Handlers) handleHealth(c *gin.Context) {
	response.Success(c, "", gin.H{
		"status":         "ok",
		"uptime":         time.Since(startedAt).Seconds(),
		"activeSessions": h.registry.Count(),
		"knowledgeBases": len(h.index.List()),
	})
}
