package ws

import "github.com/prometheus/client_golang/prometheus"

var (
	connectedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "devconnect",
		Subsystem: "realtime",
		Name:      "connected",
		Help:      "1 while the realtime session is established.",
	})
	reconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "devconnect",
		Subsystem: "realtime",
		Name:      "reconnect_attempts_total",
		Help:      "Reconnect attempts after an unexpected transport loss.",
	})
	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devconnect",
		Subsystem: "realtime",
		Name:      "events_total",
		Help:      "Inbound events delivered to consumers, by kind.",
	}, []string{"kind"})
	decodeErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devconnect",
		Subsystem: "realtime",
		Name:      "decode_errors_total",
		Help:      "Inbound events dropped because the payload did not decode, by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(connectedGauge, reconnectsTotal, eventsTotal, decodeErrorsTotal)
}
