package model

import "github.com/prometheus/client_golang/prometheus"

var decodeSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "devconnect",
	Subsystem: "decode",
	Name:      "skipped_items_total",
	Help:      "List items dropped from a REST answer because they did not decode, by list.",
}, []string{"list"})

func init() {
	prometheus.MustRegister(decodeSkippedTotal)
}
