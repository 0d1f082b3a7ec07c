package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	assistantTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventdesk_assistant_turns_total",
			Help: "Completed assistant turns by terminal outcome.",
		},
		[]string{"outcome"},
	)
	assistantRejectedQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eventdesk_assistant_rejected_queries_total",
			Help: "Generated queries rejected by the read-only safety gate.",
		},
	)
	assistantStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventdesk_assistant_stage_duration_seconds",
			Help:    "Latency of each assistant pipeline stage.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)
	assistantRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventdesk_assistant_rows_returned",
			Help:    "Row counts produced by executed assistant queries.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)
)

func init() {
	prometheus.MustRegister(
		assistantTurnsTotal,
		assistantRejectedQueriesTotal,
		assistantStageDurationSeconds,
		assistantRowsReturned,
	)
}

func ObserveAssistantTurn(outcome string) {
	assistantTurnsTotal.WithLabelValues(outcome).Inc()
}

func ObserveRejectedQuery() {
	assistantRejectedQueriesTotal.Inc()
}

func ObserveAssistantStage(stage string, elapsed time.Duration) {
	assistantStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func ObserveRowsReturned(count int) {
	if count < 0 {
		count = 0
	}
	assistantRowsReturned.Observe(float64(count))
}
