// Package metrics exposes Prometheus collectors for ingestion and queries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"docqa/internal/models"
)

const namespace = "docqa"

var (
	ingestedChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingested_chunks_total",
		Help:      "Chunks added to the index, by source type.",
	}, []string{"source_type"})

	ingestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_errors_total",
		Help:      "Failed ingestions, by error kind.",
	}, []string{"kind"})

	queries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queries_total",
		Help:      "Answered queries, by mode and outcome.",
	}, []string{"mode", "outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Time spent in each query stage.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	retrievedChunks = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieved_chunks",
		Help:      "Chunks returned per retrieval.",
		Buckets:   prometheus.LinearBuckets(0, 1, 11),
	})
)

func RecordIngest(sourceType string, chunks int) {
	ingestedChunks.WithLabelValues(sourceType).Add(float64(chunks))
}

func RecordIngestError(err error) {
	ingestErrors.WithLabelValues(models.KindName(err)).Inc()
}

func RecordQuery(mode, outcome string) {
	queries.WithLabelValues(mode, outcome).Inc()
}

func ObserveStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func RecordRetrieved(n int) {
	retrievedChunks.Observe(float64(n))
}
