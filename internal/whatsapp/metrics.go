package whatsapp

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values for sendsTotal.
const (
	outcomeOK            = "ok"
	outcomeError         = "error"
	outcomeNotConfigured = "not_configured"
)

// sendsTotal counts gateway calls by message type and outcome.
var sendsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "whatsapp_sends_total",
		Help: "Total number of WhatsApp gateway sends by message type and outcome.",
	},
	[]string{"type", "outcome"},
)

func init() {
	prometheus.MustRegister(sendsTotal)
}
