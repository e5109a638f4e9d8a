package linalg

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linalg_dispatch_total",
		Help: "Total number of operations routed to a backend",
	}, []string{"op", "backend"})

	dispatchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linalg_dispatch_errors_total",
		Help: "Total number of failed operations by error kind",
	}, []string{"op", "kind"})
)
