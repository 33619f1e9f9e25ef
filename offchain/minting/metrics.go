package minting

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "tokenwell"

var (
	mintRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "mint_requests_total",
			Help:      "Mint requests by network and outcome",
		},
		[]string{"network", "outcome"}, // outcome: "submitted" or an error kind
	)

	mintDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "mint_duration_seconds",
			Help:      "Time from request to node acceptance or failure",
			Buckets:   prometheus.DefBuckets,
		},
	)

	txFeeLovelace = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "tx_fee_lovelace",
			Help:      "Fee of submitted mint transactions",
			Buckets:   prometheus.ExponentialBuckets(150_000, 1.5, 10),
		},
	)

	scriptCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "script_cache_misses_total",
			Help:      "Minting policies parameterized instead of served from cache",
		},
	)
)
