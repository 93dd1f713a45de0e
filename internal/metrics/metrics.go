package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// DraftWrites counts outbound per-item draft mutations by result.
	DraftWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "betslip_draft_writes_total",
		Help: "outbound draft mutations by result",
	}, []string{"result"})

	// SelectionsDropped counts selections dropped after unrecoverable sync failures.
	SelectionsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "betslip_selections_dropped_total",
		Help: "selections dropped after unrecoverable sync failures",
	})

	// DriftAborts counts submissions aborted by the price-drift check.
	DriftAborts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "betslip_drift_aborts_total",
		Help: "submissions aborted by the price-drift check",
	})

	// ExpiredSwept counts selections removed by the expiry sweeper.
	ExpiredSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "betslip_expired_swept_total",
		Help: "selections removed because their event already started",
	})

	// Reconnects counts realtime channel reconnection attempts.
	Reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "betslip_realtime_reconnects_total",
		Help: "realtime channel reconnection attempts",
	})

	// OutboxDrained counts durable pending writes delivered by the outbox worker.
	OutboxDrained = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "betslip_outbox_drained_total",
		Help: "durable pending writes drained by result",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(DraftWrites, SelectionsDropped, DriftAborts, ExpiredSwept, Reconnects, OutboxDrained)
}
