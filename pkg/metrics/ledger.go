package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(ledgerMutationsTotal, ledgerTokensTotal, ledgerConflictsTotal) }

var (
	ledgerMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_ledger_mutations_total",
			Help: "Committed token ledger mutations by kind.",
		},
		[]string{"kind"},
	)

	ledgerTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_ledger_tokens_total",
			Help: "Absolute token volume moved by ledger mutations, by kind.",
		},
		[]string{"kind"},
	)

	ledgerConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tokens_ledger_version_conflicts_total",
			Help: "Optimistic concurrency conflicts hit while writing balances.",
		},
	)
)

// IncLedgerMutation records a committed mutation moving delta tokens.
func IncLedgerMutation(kind string, delta int64) {
	ledgerMutationsTotal.WithLabelValues(norm(kind)).Inc()
	if delta < 0 {
		delta = -delta
	}
	ledgerTokensTotal.WithLabelValues(norm(kind)).Add(float64(delta))
}

func IncLedgerConflict() {
	ledgerConflictsTotal.Inc()
}
