package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckinDecisions counts check-in attempts by outcome and rejection reason.
	CheckinDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "checkin_decisions_total",
		Help:      "Student check-in attempts by outcome and reason.",
	}, []string{"outcome", "reason"})

	// Marks counts manual attendance marks by status.
	Marks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "marks_total",
		Help:      "Manual attendance marks by status.",
	}, []string{"status"})

	SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "sessions_created_total",
		Help:      "Sessions created, by origin.",
	}, []string{"origin"})

	ImportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "import_rows_total",
		Help:      "Bulk import rows by result.",
	}, []string{"result"})

	UpsertRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "upsert_retries_total",
		Help:      "Attendance upserts retried after a unique-constraint conflict.",
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})

	// CheckinEventsProcessed counts queue messages handled by the worker.
	CheckinEventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "checkin_events_processed_total",
		Help:      "Check-in events consumed by the worker, by result.",
	}, []string{"result"})
)
