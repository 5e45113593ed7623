package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	metricDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qwikswitch_dispatched_total",
			Help: "Remote calls dispatched, by request kind.",
		},
		[]string{"kind"},
	)
	metricSuperseded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qwikswitch_commands_superseded_total",
			Help: "Queued commands replaced by a newer command for the same device.",
		},
	)
	metricRemoteErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qwikswitch_remote_errors_total",
			Help: "Remote calls that failed or timed out.",
		},
	)
	metricQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qwikswitch_queue_depth",
			Help: "Requests currently queued across both tiers.",
		},
	)
)

func init() {
	prometheus.MustRegister(metricDispatched, metricSuperseded, metricRemoteErrors, metricQueueDepth)
}
