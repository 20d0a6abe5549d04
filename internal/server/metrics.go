// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/secure-doc-ai/pipeline/internal/document"
	"github.com/secure-doc-ai/pipeline/internal/worker"
)

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secure_doc_ai_jobs_processed_total",
			Help: "Total documents processed, labeled by terminal status.",
		},
		[]string{"status"},
	)

	jobDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "secure_doc_ai_job_duration_seconds",
			Help:    "Wall-clock time to run the full validate-through-audit pipeline for one job.",
			Buckets: prometheus.DefBuckets,
		},
	)

	entitiesDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "secure_doc_ai_entities_detected_total",
			Help: "Total PII entities detected across all processed documents.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsProcessedTotal, jobDurationSeconds, entitiesDetectedTotal)

	// Create the terminal-status series up front so they are exported as
	// zero before the first job finishes.
	for _, status := range []document.JobStatus{document.StatusCompleted, document.StatusFailed} {
		jobsProcessedTotal.WithLabelValues(string(status))
	}
}

// Instrument wraps a worker.ProcessFunc so every job it runs records
// Prometheus metrics, without the pipeline package itself needing to
// know Prometheus exists.
func Instrument(process worker.ProcessFunc) worker.ProcessFunc {
	return func(ctx context.Context, job worker.Job) (document.ProcessResult, error) {
		start := time.Now()
		result, err := process(ctx, job)

		jobDurationSeconds.Observe(time.Since(start).Seconds())
		entitiesDetectedTotal.Add(float64(result.EntityCount))

		status := string(result.Status)
		if status == "" {
			status = "unknown"
		}
		jobsProcessedTotal.WithLabelValues(status).Inc()

		return result, err
	}
}
