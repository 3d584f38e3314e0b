package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planora",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route.",
		},
		[]string{"route"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planora",
			Name:      "booking_transitions_total",
			Help:      "Committed booking transitions by action and resulting status.",
		},
		[]string{"action", "to"},
	)

	bookingTransitionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planora",
			Name:      "booking_transition_errors_total",
			Help:      "Rejected or failed booking transitions by action and reason.",
		},
		[]string{"action", "reason"},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planora",
			Name:      "ledger_sync_tasks_total",
			Help:      "Ledger sync task outcomes.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingTransitions, bookingTransitionErrors, syncTasks)
	})
}

func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}

func IncTransition(action, to string) {
	bookingTransitions.WithLabelValues(action, to).Inc()
}

func IncTransitionError(action, reason string) {
	bookingTransitionErrors.WithLabelValues(action, reason).Inc()
}

// IncSyncTask counts a ledger task result: completed, retry or failed.
func IncSyncTask(result string) {
	syncTasks.WithLabelValues(result).Inc()
}
