// Package metrics declares the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCCallsTotal counts JSON-RPC requests by method.
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commitfi_rpc_calls_total",
			Help: "Total number of JSON-RPC calls",
		},
		[]string{"method"},
	)

	// RPCErrorsTotal counts failed JSON-RPC requests by method and error kind
	// (revert, rpc, transport).
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commitfi_rpc_errors_total",
			Help: "Total number of JSON-RPC errors",
		},
		[]string{"method", "kind"},
	)

	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commitfi_rpc_latency_seconds",
			Help:    "JSON-RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "commitfi_rpc_batch_size",
			Help:    "Number of calls per JSON-RPC batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	TxSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commitfi_tx_sent_total",
			Help: "Transactions broadcast by contract method",
		},
		[]string{"method"},
	)

	// OperationsTotal counts finished workflow operations by kind and outcome
	// (success, error).
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commitfi_operations_total",
			Help: "Finished workflow operations",
		},
		[]string{"kind", "outcome"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commitfi_operation_duration_seconds",
			Help:    "Wall time from operation start to terminal state",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	AllowanceAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "commitfi_allowance_attempts",
			Help:    "Allowance reads needed before an approval became visible",
			Buckets: prometheus.LinearBuckets(1, 2, 8),
		},
	)

	AuctionWatchesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "commitfi_auction_watches_active",
			Help: "Auction views currently being polled",
		},
	)

	// AuctionRefetchTotal counts auction reads by trigger (initial, poll,
	// event, manual).
	AuctionRefetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commitfi_auction_refetch_total",
			Help: "Auction state reads by trigger",
		},
		[]string{"trigger"},
	)

	GroupsAggregated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "commitfi_groups_aggregated",
			Help: "Groups returned by the last aggregation pass",
		},
	)
)
