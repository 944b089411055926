package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are registered on the default registry and served by the
// daemon's /metrics endpoint.
var (
	BackupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neoback",
		Subsystem: "backup",
		Name:      "runs_total",
		Help:      "Backup runs by outcome.",
	}, []string{"outcome"})

	BackupDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "neoback",
		Subsystem: "backup",
		Name:      "duration_seconds",
		Help:      "Wall time of completed backup runs.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	BackupCompressedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "neoback",
		Subsystem: "backup",
		Name:      "last_compressed_bytes",
		Help:      "Compressed size of the most recent successful backup.",
	})

	HealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neoback",
		Subsystem: "health",
		Name:      "checks_total",
		Help:      "Verification checks by name and status.",
	}, []string{"check", "status"})

	RestoreSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neoback",
		Subsystem: "restore",
		Name:      "sessions_total",
		Help:      "Restore sessions by verdict.",
	}, []string{"verdict"})

	PrunedArtifactsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "neoback",
		Subsystem: "retention",
		Name:      "pruned_artifacts_total",
		Help:      "Artifacts removed by retention pruning.",
	})

	StoreFreeSpacePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "neoback",
		Subsystem: "store",
		Name:      "free_space_percent",
		Help:      "Free share of the filesystem holding the backup root.",
	})

	ScheduledRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neoback",
		Subsystem: "scheduler",
		Name:      "runs_total",
		Help:      "Scheduled task runs by task and outcome.",
	}, []string{"task", "outcome"})

	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neoback",
		Subsystem: "scheduler",
		Name:      "alerts_total",
		Help:      "Alerts emitted by kind.",
	}, []string{"kind"})
)
