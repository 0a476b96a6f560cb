package offline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the offline core. The daemon exposes these on its
// metrics listener; library consumers get them for free on the default
// registry.
var (
	// tasksProcessed counts drain outcomes.
	// Labels:
	//   - status: "success", "retry", or "dropped"
	tasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripsync_tasks_processed_total",
		Help: "The total number of processed retry-queue tasks",
	}, []string{"status"})

	// queueDepth tracks the number of pending tasks in the retry queue.
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tripsync_queue_depth",
		Help: "Number of tasks pending in the retry queue",
	})

	// drainDuration tracks how long a full drain pass takes.
	drainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tripsync_drain_duration_seconds",
		Help:    "Duration of retry-queue drain passes",
		Buckets: prometheus.DefBuckets,
	})

	// connectivityStatus mirrors the coordinator's status:
	// 0 = unknown, 1 = offline, 2 = online.
	connectivityStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tripsync_connectivity_status",
		Help: "Current connectivity status (0=unknown, 1=offline, 2=online)",
	})

	// offlineMode mirrors the manual override flag (1 = forced offline).
	offlineMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tripsync_offline_mode",
		Help: "Whether the manual offline override is active",
	})
)
