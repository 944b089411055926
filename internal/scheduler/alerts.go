package scheduler

import (
	"time"

	"github.com/kebairia/neoback/internal/logger"
	"github.com/kebairia/neoback/internal/metrics"
)

// Alert kinds.
const (
	AlertTaskFailed  = "task_failed"
	AlertTaskSkipped = "task_skipped"
	AlertTaskPanic   = "task_panic"
	AlertLowSpace    = "low_space"
)

// Alert is a structured notification about a scheduled task. Every task
// failure surfaces as exactly one alert; the process itself never crashes
// over a task.
type Alert struct {
	Timestamp time.Time `json:"timestamp"`
	Task      string    `json:"task"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
}

// AlertFunc receives alerts. Implementations must not block.
type AlertFunc func(Alert)

// LogAlerts writes alerts to log, the default notification path.
func LogAlerts(log logger.Logger) AlertFunc {
	return func(a Alert) {
		log.Error("scheduler alert",
			"task", a.Task,
			"kind", a.Kind,
			"detail", a.Detail,
		)
	}
}

// Notify raises an alert outside the task lifecycle, for conditions a task
// discovers rather than suffers, like a prune run reporting low free space.
func (s *Scheduler) Notify(task, kind, detail string) {
	s.emit(task, kind, detail)
}

func (s *Scheduler) emit(task, kind, detail string) {
	metrics.AlertsTotal.WithLabelValues(kind).Inc()
	s.alert(Alert{
		Timestamp: s.now().UTC(),
		Task:      task,
		Kind:      kind,
		Detail:    detail,
	})
}
