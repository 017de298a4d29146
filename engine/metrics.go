package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	mutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsync_mutations_total",
			Help: "Total cart mutations by operation and outcome",
		},
		[]string{"op", "result"},
	)

	staleResponsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cartsync_stale_responses_total",
			Help: "Server responses discarded because a newer intent superseded them",
		},
	)

	coalescedIntentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cartsync_coalesced_intents_total",
			Help: "Quantity updates absorbed into an already pending request",
		},
	)

	pendingOps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cartsync_pending_operations",
			Help: "Mutations currently awaiting server settlement",
		},
	)
)

const (
	resultConfirmed  = "confirmed"
	resultRolledBack = "rolled_back"
)

func init() {
	prometheus.MustRegister(
		mutationsTotal,
		staleResponsesTotal,
		coalescedIntentsTotal,
		pendingOps,
	)
}
