// Package metrics exposes the Prometheus collectors shared by the
// authoritative server and resolver.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts inbound queries by transport protocol, query
	// type and the rcode the server answered with.
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nsroot_queries_total",
		Help: "Total DNS queries handled, by protocol, qtype and rcode.",
	}, []string{"protocol", "qtype", "rcode"})

	// QueryDuration measures end-to-end handling latency per protocol.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nsroot_query_duration_seconds",
		Help:    "Time to answer a query, by protocol.",
		Buckets: prometheus.DefBuckets,
	}, []string{"protocol"})

	// AXFRTransfersTotal counts completed/failed zone transfers.
	AXFRTransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nsroot_axfr_transfers_total",
		Help: "AXFR transfers served, by outcome.",
	}, []string{"outcome"})

	// ResolverQueriesSpent records the queries actually spent per
	// resolution, as a histogram observed at the end of each resolution.
	ResolverQueriesSpent = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nsroot_resolver_queries_spent",
		Help:    "Upstream queries spent per iterative resolution.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 300},
	})

	// RateLimitedTotal counts queries dropped by the per-IP limiter.
	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nsroot_rate_limited_total",
		Help: "Queries rejected by the per-source rate limiter.",
	})
)
