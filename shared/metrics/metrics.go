// Package metrics exposes Prometheus collectors for the orchestration pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsEnqueued tracks the number of jobs accepted by the API.
	JobsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_jobs_enqueued_total",
		Help: "The total number of jobs accepted and enqueued.",
	})
	// JobsCompleted tracks the number of jobs that reached the completed state.
	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_jobs_completed_total",
		Help: "The total number of jobs completed successfully.",
	})
	// JobsFailed tracks the number of jobs that reached the failed state.
	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_jobs_failed_total",
		Help: "The total number of jobs that terminated in failure.",
	})
	// JobsReaped tracks jobs returned to the queue by the visibility-timeout reaper.
	JobsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_jobs_reaped_total",
		Help: "The total number of abandoned jobs made reclaimable.",
	})
	// RateLimitHits tracks rate-limiter rejections per source.
	RateLimitHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_rate_limit_hits_total",
		Help: "The total number of admission checks rejected by the rate limiter.",
	}, []string{"source"})
	// EntitiesWritten tracks normalized entities persisted to the result store.
	EntitiesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_entities_written_total",
		Help: "The total number of entities written to the result store.",
	}, []string{"type"})
	// SlotsBusy tracks worker slots currently executing a job.
	SlotsBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_worker_slots_busy",
		Help: "The number of worker slots currently executing a job.",
	})
	// StreamSubscribers tracks open SSE subscriptions.
	StreamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_stream_subscribers",
		Help: "The number of open job event-stream subscriptions.",
	})
)
