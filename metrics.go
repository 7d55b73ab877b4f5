package kcomp

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	enginePrometheusMetrics sync.Once

	engineBlocksEncodedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kcomp",
			Subsystem: "engine",
			Name:      "blocks_encoded_total",
			Help:      "Number of blocks written to containers, by the algorithm recorded in the block.",
		},
		[]string{"algorithm"})
	engineBlocksDecodedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kcomp",
			Subsystem: "engine",
			Name:      "blocks_decoded_total",
			Help:      "Number of blocks decoded and verified, by algorithm.",
		},
		[]string{"algorithm"})
	engineBlocksFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kcomp",
			Subsystem: "engine",
			Name:      "blocks_fallback_total",
			Help:      "Number of blocks stored because the selected algorithm did not shrink them.",
		},
		[]string{"selected_algorithm"})
	engineBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kcomp",
			Subsystem: "engine",
			Name:      "bytes_total",
			Help:      "Number of bytes consumed and produced by the engine.",
		},
		[]string{"operation", "direction"})
	engineBlockEncodeDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kcomp",
			Subsystem: "engine",
			Name:      "block_encode_duration_seconds",
			Help:      "Time spent selecting and encoding a single block.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		},
		[]string{"algorithm"})
)

func registerMetrics() {
	enginePrometheusMetrics.Do(func() {
		prometheus.MustRegister(engineBlocksEncodedTotal)
		prometheus.MustRegister(engineBlocksDecodedTotal)
		prometheus.MustRegister(engineBlocksFallbackTotal)
		prometheus.MustRegister(engineBytesTotal)
		prometheus.MustRegister(engineBlockEncodeDurationSeconds)
	})
}
