package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WebhooksTotal counts inbound webhook deliveries by payload format.
	WebhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertbridge_webhooks_total",
			Help: "Inbound webhook deliveries.",
		},
		[]string{"format", "result"},
	)
	// NotificationsTotal counts outbound room messages by kind.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertbridge_notifications_total",
			Help: "Messages sent to the Matrix room.",
		},
		[]string{"kind"},
	)
	// MentionsTotal counts persistent mention pings by context.
	MentionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertbridge_mentions_total",
			Help: "Mention pings fired by evaluation context.",
		},
		[]string{"context"},
	)
	// SummariesTotal counts summary messages by severity and trigger.
	SummariesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertbridge_summaries_total",
			Help: "Summary messages by severity class and trigger.",
		},
		[]string{"severity", "trigger"},
	)
	// SilencesTotal counts silence attempts by result.
	SilencesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertbridge_silences_total",
			Help: "Silence attempts from room reactions.",
		},
		[]string{"result"},
	)
	// ErrorsTotal counts internal failures by stage.
	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertbridge_errors_total",
			Help: "Internal failures by processing stage.",
		},
		[]string{"stage"},
	)
	// ActiveAlerts tracks the number of alerts currently stored as firing.
	ActiveAlerts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "alertbridge_active_alerts",
			Help: "Alerts currently tracked as firing.",
		},
	)
)

// Register registers all bridge collectors with the default registry.
// Params: none.
// Returns: panics on duplicate registration, so call once at startup.
func Register() {
	prometheus.MustRegister(WebhooksTotal)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(MentionsTotal)
	prometheus.MustRegister(SummariesTotal)
	prometheus.MustRegister(SilencesTotal)
	prometheus.MustRegister(ErrorsTotal)
	prometheus.MustRegister(ActiveAlerts)
}

// Handler returns the HTTP handler for the metrics endpoint.
// Params: none.
// Returns: promhttp handler over the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
