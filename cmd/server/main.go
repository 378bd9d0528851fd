package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/echoline-ai/echoline/internal/dialog"
	handlers "github.com/echoline-ai/echoline/internal/handler"
	"github.com/echoline-ai/echoline/internal/knowledge"
	"github.com/echoline-ai/echoline/internal/listeners"
	"github.com/echoline-ai/echoline/internal/responder"
	"github.com/echoline-ai/echoline/internal/session"
	"github.com/echoline-ai/echoline/internal/speech"
	"github.com/echoline-ai/echoline/internal/task"
	"github.com/echoline-ai/echoline/internal/telephony"
	"github.com/echoline-ai/echoline/pkg/config"
	"github.com/echoline-ai/echoline/pkg/events"
	"github.com/echoline-ai/echoline/pkg/logger"
	"github.com/echoline-ai/echoline/pkg/middleware"
)

func main() {
	// 1. Parse Command Line Parameters
	mode := flag.String("mode", "", "running environment (development, test, production)")
	flag.Parse()
	if *mode != "" {
		os.Setenv("APP_ENV", *mode)
	}

	// 2. Load Global Configuration
	if err := config.Load(); err != nil {
		panic("config load failed: " + err.Error())
	}
	cfg := config.GlobalConfig

	// 3. Load Log Configuration
	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()

	// 4. Wire the call pipeline
	bus := events.NewBus()
	listeners.RegisterMetricsListeners(bus)

	registry := session.NewRegistry(session.Options{
		MaxTurns:    cfg.Session.MaxTurns,
		MaxAge:      cfg.Session.MaxAge,
		GraceWindow: cfg.Session.GraceWindow,
	}, bus)
	testRegistry := session.NewRegistry(session.Options{
		MaxTurns:       cfg.Session.TestMaxTurns,
		MaxAge:         cfg.Session.MaxAge,
		GraceWindow:    cfg.Session.GraceWindow,
		AllowAnonymous: true,
	}, nil)

	index := knowledge.NewIndex()

	var backend responder.ModelBackend
	if cfg.LLM.APIKey != "" {
		backend = responder.NewOpenAIBackend(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.MaxTokens)
	} else {
		logger.Warn("No model API key configured, canned fallback only")
	}
	generator := responder.NewGenerator(backend, index, responder.Options{
		Models:         cfg.LLM.Models,
		AttemptTimeout: cfg.LLM.AttemptTimeout,
	}, bus)

	controller := dialog.NewController(registry, generator, dialog.Options{
		GatherAction: cfg.APIPrefix + "/webhooks/twilio/gather",
	})

	gateway := telephony.NewGateway(telephony.Config{
		AccountSID:  cfg.Twilio.AccountSID,
		AuthToken:   cfg.Twilio.AuthToken,
		PhoneNumber: cfg.Twilio.PhoneNumber,
		WebhookBase: cfg.WebhookBaseURL,
	})

	speechClient := speech.NewClient(cfg.Speech.APIKey, cfg.Speech.BaseURL)

	// 5. Start Timed Tasks
	reaper := task.StartSessionReaper(registry, testRegistry)
	defer reaper.Stop()

	// 6. Initialize Gin Routing
	if cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CorsMiddleware())
	r.Use(middleware.LoggerMiddleware(logger.GetLogger()))

	h := handlers.NewHandlers(handlers.Deps{
		Registry:     registry,
		TestRegistry: testRegistry,
		Index:        index,
		Generator:    generator,
		Controller:   controller,
		Gateway:      gateway,
		Speech:       speechClient,
	})
	h.Register(r)

	// 7. Serve until interrupted
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	go func() {
		logger.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
	}
}
