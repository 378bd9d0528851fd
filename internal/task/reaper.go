package task

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/echoline-ai/echoline/internal/session"
	"github.com/echoline-ai/echoline/pkg/logger"
)

// StartSessionReaper sweeps expired sessions from every registry once
// an hour. Expired entries are already invisible to lookups; the sweep
// reclaims their memory and fires eviction callbacks. The returned
// cron must be stopped at shutdown.
func StartSessionReaper(registries ...*session.Registry) *cron.Cron {
	c := cron.New()

	schedule := "@hourly"
	_, err := c.AddFunc(schedule, func() {
		for _, r := range registries {
			before := r.Count()
			r.Reap()
			after := r.Count()
			if before != after {
				logger.Info("Session sweep completed",
					zap.Int("reaped", before-after),
					zap.Int("remaining", after))
			}
		}
	})
	if err != nil {
		logger.Error("Failed to add session reaper cron job", zap.Error(err))
		return c
	}

	c.Start()
	logger.Info("Session reaper started", zap.String("schedule", schedule))
	return c
}
