package driver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shapebench_driver_transfers_total",
			Help: "Number of transfers, by group and status.",
		},
		[]string{"group", "status"},
	)
	transferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shapebench_driver_transfer_duration_seconds",
			Help:    "Duration of successful transfers, by group.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 16),
		},
		[]string{"group"},
	)
	shapingOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shapebench_driver_shaping_operations_total",
			Help: "Number of shaping operations, by operation and result.",
		},
		[]string{"op", "result"},
	)
)
