package remote

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	exchangeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linalg_remote_exchange_duration_seconds",
		Help:    "Time spent serving reduction exchanges",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	batchesServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linalg_remote_batches_total",
		Help: "Total number of matrices reduced for remote clients",
	}, []string{"op"})

	breakerRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linalg_remote_breaker_rejections_total",
		Help: "Total number of client calls refused by an open circuit breaker",
	})
)
