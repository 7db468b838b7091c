package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LedgerEvents counts kardex entries written, by event kind.
	LedgerEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "granja_ledger_events_total",
		Help: "Kardex entries written, by event kind.",
	}, []string{"kind"})

	// NegativeBalances counts stock mutations that left an article below zero.
	NegativeBalances = promauto.NewCounter(prometheus.CounterOpts{
		Name: "granja_ledger_negative_balance_total",
		Help: "Stock mutations that resulted in a negative balance.",
	})

	// RebuildDrift counts articles where the kardex rebuild found a discrepancy.
	RebuildDrift = promauto.NewCounter(prometheus.CounterOpts{
		Name: "granja_ledger_rebuild_drift_total",
		Help: "Articles with a nonzero discrepancy detected during rebuild.",
	})
)
