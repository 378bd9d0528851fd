package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/echoline-ai/echoline/internal/dialog"
	"github.com/echoline-ai/echoline/internal/knowledge"
	"github.com/echoline-ai/echoline/internal/responder"
	"github.com/echoline-ai/echoline/internal/session"
	"github.com/echoline-ai/echoline/internal/speech"
	"github.com/echoline-ai/echoline/internal/telephony"
	"github.com/echoline-ai/echoline/pkg/config"
	"github.com/echoline-ai/echoline/pkg/middleware"
)

// Handlers carries every dependency the HTTP surface needs. Everything
// is injected; nothing here reaches for process globals.
type Handlers struct {
	registry     *session.Registry
	testRegistry *session.Registry
	index        *knowledge.Index
	generator    *responder.Generator
	controller   *dialog.Controller
	gateway      *telephony.Gateway
	speech       *speech.Client
}

// Deps is the constructor input for Handlers.
type Deps struct {
	Registry     *session.Registry
	TestRegistry *session.Registry
	Index        *knowledge.Index
	Generator    *responder.Generator
	Controller   *dialog.Controller
	Gateway      *telephony.Gateway
	Speech       *speech.Client
}

// NewHandlers wires the HTTP surface.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		registry:     deps.Registry,
		testRegistry: deps.TestRegistry,
		index:        deps.Index,
		generator:    deps.Generator,
		controller:   deps.Controller,
		gateway:      deps.Gateway,
		speech:       deps.Speech,
	}
}

// Register mounts all routes. The management surface sits behind the
// API key; webhooks are open because the provider cannot send our key.
func (h *Handlers) Register(engine *gin.Engine) {
	api := engine.Group(config.GlobalConfig.APIPrefix)

	managed := api.Group("")
	managed.Use(middleware.APIKeyAuth(config.GlobalConfig.APISecretKey))
	h.registerCallRoutes(managed)
	h.registerKnowledgeRoutes(managed)
	h.registerTestingRoutes(managed)
	h.registerVoiceRoutes(managed)

	h.registerWebhookRoutes(api.Group("/webhooks"))
	h.registerSystemRoutes(engine)
	h.registerWebSocketRoutes(engine)
}
