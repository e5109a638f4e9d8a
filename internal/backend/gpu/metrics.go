package gpu

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linalg_gpu_transfers_total",
		Help: "Total number of host/device copies",
	}, []string{"direction"})

	transferBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linalg_gpu_transfer_bytes_total",
		Help: "Total bytes copied between host and device",
	}, []string{"direction"})

	kernelLaunches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linalg_gpu_kernel_launches_total",
		Help: "Total number of device kernel launches",
	}, []string{"kernel"})
)
