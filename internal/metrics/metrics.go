package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MemoriesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memorymap_memories_created_total",
			Help: "Total number of memories created",
		},
	)

	MemoriesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memorymap_memories_deleted_total",
			Help: "Total number of successful delete requests",
		},
	)

	AuthorizeAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memorymap_authorize_attempts_total",
			Help: "Key checks by result",
		},
		[]string{"result"}, // "ok", "denied", "error"
	)

	Uploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memorymap_uploads_total",
			Help: "Photo uploads by result",
		},
		[]string{"result"},
	)

	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "memorymap_subscribers",
			Help: "Connected live subscription clients",
		},
	)
)
