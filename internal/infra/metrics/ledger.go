package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		ledgerTransactions,
		ledgerDebitFailures,
		ledgerBalanceReads,
	)
}

var (
	ledgerTransactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_ledger_transactions_total",
			Help: "Ledger transactions recorded, by type and source.",
		},
		[]string{"type", "source"},
	)

	ledgerDebitFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_ledger_debit_failures_total",
			Help: "Debit attempts that failed, by reason.",
		},
		[]string{"reason"}, // 'insufficient', 'unavailable'
	)

	ledgerBalanceReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_ledger_balance_reads_total",
			Help: "Balance reads against the ledger.",
		},
		[]string{"success"},
	)
)

func IncLedgerTransaction(txType, source string) {
	ledgerTransactions.WithLabelValues(norm(txType), norm(source)).Inc()
}

func IncLedgerDebitFailure(reason string) {
	ledgerDebitFailures.WithLabelValues(norm(reason)).Inc()
}

func IncLedgerBalanceRead(success bool) {
	ledgerBalanceReads.WithLabelValues(strconv.FormatBool(success)).Inc()
}
