package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the relay. It covers the bot
// command surface, the reconciliation loop, the webhook path, and the
// database query latencies.
type Metrics struct {
	CommandReceived *prometheus.CounterVec   // Counter for received bot commands
	SentMessages    *prometheus.CounterVec   // Counter for messages sent by delivery path
	NewUsers        prometheus.Counter       // Counter for completed registrations
	ReconcileCycles *prometheus.CounterVec   // Counter for reconciliation cycles by outcome
	CallsFetched    prometheus.Counter       // Counter for call records fetched from the platform
	NotifyFailures  *prometheus.CounterVec   // Counter for skipped notifications by reason
	WebhookRequests *prometheus.CounterVec   // Counter for webhook requests by response status
	DBQueryDuration *prometheus.HistogramVec // Histogram for database query durations
	CycleDuration   prometheus.Histogram     // Histogram for full reconciliation cycle durations
}

// NewMetrics creates a new Metrics instance with the provided Prometheus Registerer.
//
// Parameters:
//   - reg: A Prometheus Registerer used to register the metrics.
//
// Returns:
//   - A pointer to the newly created Metrics instance.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		CommandReceived: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_commands_received_total",
			Help: "Total number of used bot commands",
		}, []string{"command"}), // command: /start, /assign, /edit_template ...
		SentMessages: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_messages_sent_total",
			Help: "Outgoing Telegram messages",
		}, []string{"path"}), // path: bot, scheduler, webhook, error
		NewUsers: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "callrelay_new_users_total",
			Help: "Total number of completed registrations",
		}),
		ReconcileCycles: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_reconcile_cycles_total",
			Help: "Reconciliation cycles by outcome",
		}, []string{"outcome"}), // outcome: completed, no_template, failed
		CallsFetched: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "callrelay_calls_fetched_total",
			Help: "Call records fetched from the platform",
		}),
		NotifyFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_notification_failures_total",
			Help: "Notifications skipped by failure reason",
		}, []string{"reason"}), // reason: render, delivery, fetch
		WebhookRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_webhook_requests_total",
			Help: "Inbound webhook requests by response status",
		}, []string{"status"}),
		DBQueryDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "callrelay_db_query_duration_seconds",
			Help:    "Duration of database queries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"query_type"}), // query_type: 'create_user', 'list_bindings'
		CycleDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "callrelay_reconcile_cycle_duration_seconds",
			Help: "Duration of full reconciliation cycles.",
		}),
	}
}
