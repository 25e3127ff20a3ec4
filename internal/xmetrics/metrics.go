// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package xmetrics holds the process-wide Prometheus counters and
// histograms for the extraction core: jobs, stage durations,
// model-cache hits/misses, throttle state, chunk counts, and segment
// counts. Mirrors the donor's sync.Once-guarded package-struct shape
// (pkg/ingestion/metrics.go) with names rescoped to this domain.
package xmetrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type metricsCore struct {
	once sync.Once

	// Jobs
	jobsSubmitted prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter

	// Pipeline stages
	stageOpsTotal   prometheus.Counter
	stageOpsFailed  prometheus.Counter
	stageDuration   prometheus.Histogram
	opDuration      prometheus.Histogram

	// Model cache
	modelCacheHits   prometheus.Counter
	modelCacheMisses prometheus.Counter
	modelLoadFailed  prometheus.Counter
	modelLoadSeconds prometheus.Histogram

	// Throttle
	throttleDelaysTotal prometheus.Counter

	// Chunker / segmentation
	chunksEmitted   prometheus.Counter
	segmentsEmitted prometheus.Counter
	sceneChanges    prometheus.Counter
}

var coreMetrics metricsCore

func (m *metricsCore) init() {
	m.once.Do(func() {
		m.jobsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractcore_jobs_submitted_total", Help: "Jobs submitted for extraction"})
		m.jobsCompleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractcore_jobs_completed_total", Help: "Jobs that reached Completed"})
		m.jobsFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractcore_jobs_failed_total", Help: "Jobs that reached Failed"})

		m.stageOpsTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractcore_stage_ops_total", Help: "Ops dispatched by the pipeline executor"})
		m.stageOpsFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractcore_stage_ops_failed_total", Help: "Ops that returned an error"})

		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
		m.stageDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "extractcore_stage_seconds", Help: "Duration of one stage group", Buckets: buckets})
		m.opDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "extractcore_op_seconds", Help: "Duration of one plugin invocation", Buckets: buckets})

		m.modelCacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractcore_model_cache_hits_total", Help: "Model session cache hits"})
		m.modelCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractcore_model_cache_misses_total", Help: "Model session cache misses (triggered a load)"})
		m.modelLoadFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractcore_model_load_failed_total", Help: "Model session load failures"})
		m.modelLoadSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "extractcore_model_load_seconds", Help: "Duration of a model session load", Buckets: buckets})

		m.throttleDelaysTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractcore_throttle_delays_total", Help: "Background-work delays inserted by the throttle controller"})

		m.chunksEmitted = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractcore_chunks_emitted_total", Help: "Markdown chunks emitted by the hierarchy chunker"})
		m.segmentsEmitted = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractcore_segments_emitted_total", Help: "Temporal segments emitted by scene segmentation"})
		m.sceneChanges = prometheus.NewCounter(prometheus.CounterOpts{Name: "extractcore_scene_changes_total", Help: "Scene changes detected across all segmentation runs"})

		prometheus.MustRegister(
			m.jobsSubmitted, m.jobsCompleted, m.jobsFailed,
			m.stageOpsTotal, m.stageOpsFailed, m.stageDuration, m.opDuration,
			m.modelCacheHits, m.modelCacheMisses, m.modelLoadFailed, m.modelLoadSeconds,
			m.throttleDelaysTotal,
			m.chunksEmitted, m.segmentsEmitted, m.sceneChanges,
		)
	})
}

// RecordJobSubmitted increments the jobs-submitted counter.
func RecordJobSubmitted() { coreMetrics.init(); coreMetrics.jobsSubmitted.Inc() }

// RecordJobCompleted increments the jobs-completed counter.
func RecordJobCompleted() { coreMetrics.init(); coreMetrics.jobsCompleted.Inc() }

// RecordJobFailed increments the jobs-failed counter.
func RecordJobFailed() { coreMetrics.init(); coreMetrics.jobsFailed.Inc() }

// RecordOp records one op dispatch and its duration in seconds; ok is
// false if the op returned an error.
func RecordOp(seconds float64, ok bool) {
	coreMetrics.init()
	coreMetrics.stageOpsTotal.Inc()
	coreMetrics.opDuration.Observe(seconds)
	if !ok {
		coreMetrics.stageOpsFailed.Inc()
	}
}

// RecordStage records one stage group's total wall-clock duration.
func RecordStage(seconds float64) {
	coreMetrics.init()
	coreMetrics.stageDuration.Observe(seconds)
}

// RecordModelCacheHit increments the model-cache-hit counter.
func RecordModelCacheHit() { coreMetrics.init(); coreMetrics.modelCacheHits.Inc() }

// RecordModelCacheMiss increments the model-cache-miss counter and
// observes the load duration in seconds.
func RecordModelCacheMiss(loadSeconds float64) {
	coreMetrics.init()
	coreMetrics.modelCacheMisses.Inc()
	coreMetrics.modelLoadSeconds.Observe(loadSeconds)
}

// RecordModelLoadFailed increments the model-load-failure counter.
func RecordModelLoadFailed() { coreMetrics.init(); coreMetrics.modelLoadFailed.Inc() }

// RecordThrottleDelay increments the throttle-delay counter.
func RecordThrottleDelay() { coreMetrics.init(); coreMetrics.throttleDelaysTotal.Inc() }

// RecordChunksEmitted adds n to the chunks-emitted counter.
func RecordChunksEmitted(n int) {
	coreMetrics.init()
	coreMetrics.chunksEmitted.Add(float64(n))
}

// RecordSegmentation adds segments and sceneChanges counts from one
// segmentation run.
func RecordSegmentation(segments, sceneChanges int) {
	coreMetrics.init()
	coreMetrics.segmentsEmitted.Add(float64(segments))
	coreMetrics.sceneChanges.Add(float64(sceneChanges))
}
