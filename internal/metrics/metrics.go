package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ReportsSubmitted counts persisted reports by channel and urgency.
	ReportsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "intake",
		Name:      "reports_submitted_total",
		Help:      "Total number of reports persisted by intake, labeled by channel and urgency.",
	}, []string{"channel", "urgency"})

	// SubmissionsRejected counts submissions that never reached persistence.
	SubmissionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "intake",
		Name:      "submissions_rejected_total",
		Help:      "Total number of rejected submissions, labeled by reason.",
	}, []string{"reason"})

	// FileUploads counts attachment uploads by category and result.
	FileUploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "intake",
		Name:      "file_uploads_total",
		Help:      "Total number of attachment uploads, labeled by category and result.",
	}, []string{"category", "result"})

	// SerialCollisions counts serial number draws that collided with an existing report.
	SerialCollisions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "intake",
		Name:      "serial_collisions_total",
		Help:      "Total number of serial number draws rejected as duplicates.",
	})

	// Transitions counts lifecycle transitions by event and result.
	Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "Total number of attempted lifecycle transitions, labeled by event and result.",
	}, []string{"event", "result"})

	// AuditWriteFailures counts audit rows that could not be written.
	AuditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "audit",
		Name:      "write_failures_total",
		Help:      "Total number of audit entries dropped because the write failed.",
	})

	// FileScans counts security scan outcomes.
	FileScans = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "scanner",
		Name:      "file_scans_total",
		Help:      "Total number of attachment scans, labeled by status.",
	}, []string{"status"})

	// ListenerDuration is the time spent in change-event handlers.
	ListenerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portal",
		Subsystem: "events",
		Name:      "listener_duration_seconds",
		Help:      "Time spent in change-event listeners, labeled by table and result.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"table", "result"})

	// EmailsSent counts outbound notification emails by kind and result.
	EmailsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "notify",
		Name:      "emails_total",
		Help:      "Total number of notification emails attempted, labeled by kind and result.",
	}, []string{"kind", "result"})
)

// Register registers portal metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ReportsSubmitted,
			SubmissionsRejected,
			FileUploads,
			SerialCollisions,
			Transitions,
			AuditWriteFailures,
			FileScans,
			ListenerDuration,
			EmailsSent,
		)
	})
}

// Result maps an error to the "ok"/"error" label used across collectors.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
