package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	allocBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "linalg_device_alloc_bytes",
		Help: "Bytes of device memory currently allocated",
	}, []string{"driver"})

	liveHandles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "linalg_device_handles",
		Help: "Number of live device memory handles",
	}, []string{"driver"})

	allocFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linalg_device_alloc_failures_total",
		Help: "Total number of device allocations refused for lack of memory",
	}, []string{"driver"})

	kernelFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linalg_device_kernel_faults_total",
		Help: "Total number of kernel launches that faulted",
	}, []string{"driver"})
)
