package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transaction lifecycle
	TransactionsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wallet",
		Subsystem: "transaction",
		Name:      "submitted_total",
		Help:      "Total transactions submitted, by result",
	}, []string{"result"})

	TransactionsResent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wallet",
		Subsystem: "transaction",
		Name:      "resent_total",
		Help:      "Total stuck transactions resent by the sweep",
	})

	TransactionsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wallet",
		Subsystem: "transaction",
		Name:      "finalized_total",
		Help:      "Total transactions reaching a terminal state, by status and reason",
	}, []string{"status", "reason"})

	TransactionsExternal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wallet",
		Subsystem: "transaction",
		Name:      "external_total",
		Help:      "Total transactions discovered on the ledger that were not sent locally",
	})

	LedgerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wallet",
		Subsystem: "ledger",
		Name:      "errors_total",
		Help:      "Total ledger call errors, by operation and class",
	}, []string{"operation", "class"})

	// Block monitor
	BlocksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wallet",
		Subsystem: "monitor",
		Name:      "blocks_processed_total",
		Help:      "Total blocks processed by the block monitor",
	})

	MonitorReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wallet",
		Subsystem: "monitor",
		Name:      "reconnects_total",
		Help:      "Total block subscription reconnect attempts",
	})

	LastWatchedBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wallet",
		Subsystem: "monitor",
		Name:      "last_watched_block",
		Help:      "Last block fully processed by the block monitor",
	})

	// Rewards
	RewardsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wallet",
		Subsystem: "reward",
		Name:      "sent_total",
		Help:      "Total wallet reward payouts, by result",
	}, []string{"result"})

	RewardPluginErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wallet",
		Subsystem: "reward",
		Name:      "plugin_errors_total",
		Help:      "Total reward plugin failures",
	}, []string{"plugin"})

	RewardPeriodsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wallet",
		Subsystem: "reward",
		Name:      "periods_finalized_total",
		Help:      "Total reward periods reaching a terminal status",
	}, []string{"status"})

	// Jobs
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wallet",
		Subsystem: "task",
		Name:      "runs_total",
		Help:      "Total scheduled job runs",
	}, []string{"job"})

	JobLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wallet",
		Subsystem: "task",
		Name:      "duration_seconds",
		Help:      "Scheduled job duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"job"})
)
