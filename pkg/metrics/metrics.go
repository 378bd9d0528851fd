package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks live call sessions currently in the registry.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "echoline",
		Name:      "active_sessions",
		Help:      "Number of call sessions currently active.",
	})

	// TurnsProcessed counts completed conversation turns by outcome.
	TurnsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "echoline",
		Name:      "turns_processed_total",
		Help:      "Conversation turns processed, labeled by outcome.",
	}, []string{"outcome"})

	// ModelFallbacks counts responses served by a non-primary model or by
	// the canned fallback.
	ModelFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "echoline",
		Name:      "model_fallbacks_total",
		Help:      "Responses that fell through to a backup model or canned text.",
	}, []string{"model"})

	// SessionsReaped counts sessions removed by expiry.
	SessionsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "echoline",
		Name:      "sessions_reaped_total",
		Help:      "Sessions purged by the expiry reaper.",
	})

	// KnowledgeQueries counts retrieval queries by cache result.
	KnowledgeQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "echoline",
		Name:      "knowledge_queries_total",
		Help:      "Knowledge base queries, labeled by cache hit or miss.",
	}, []string{"cache"})
)
