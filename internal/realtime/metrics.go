package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	publishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_published_total",
			Help: "Row changes published to the realtime hub.",
		},
		[]string{"table", "event"},
	)
	droppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_dropped_total",
			Help: "Row changes dropped because a subscriber was not keeping up.",
		},
		[]string{"table"},
	)
)

func init() {
	prometheus.MustRegister(publishedTotal, droppedTotal)
}
