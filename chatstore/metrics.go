package chatstore

import "github.com/prometheus/client_golang/prometheus"

var (
	duplicatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "devconnect",
		Subsystem: "conversation",
		Name:      "duplicates_total",
		Help:      "Realtime messages collapsed into an entry already held.",
	})
	scopeDiscardsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "devconnect",
		Subsystem: "conversation",
		Name:      "scope_discards_total",
		Help:      "Realtime events dropped because they belong to another conversation.",
	})
	sendFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "devconnect",
		Subsystem: "conversation",
		Name:      "send_failures_total",
		Help:      "Optimistic sends marked failed.",
	})
	chatListRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devconnect",
		Subsystem: "chatlist",
		Name:      "refreshes_total",
		Help:      "Chat list refreshes by result: ok, error or stale.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(duplicatesTotal, scopeDiscardsTotal, sendFailuresTotal, chatListRefreshes)
}
