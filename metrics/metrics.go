// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package metrics provides Prometheus counters for monitoring the proof
// engine: cache efficiency, indexer traffic, and verification outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's counters on a private registry so that multiple
// engines (one per network) can coexist in a process.
type Metrics struct {
	registry *prometheus.Registry

	ProofsVerified prometheus.Counter
	ProofFailures  prometheus.Counter
	IndexerQueries prometheus.Counter
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	ShardChecks    prometheus.Counter
}

// New creates a metrics set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		ProofsVerified: factory.NewCounter(prometheus.CounterOpts{
			Name: "liteclient_proofs_verified_total",
			Help: "Number of key-block proofs successfully verified and persisted.",
		}),
		ProofFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "liteclient_proof_failures_total",
			Help: "Number of proof verifications that failed.",
		}),
		IndexerQueries: factory.NewCounter(prometheus.CounterOpts{
			Name: "liteclient_indexer_queries_total",
			Help: "Number of collection queries issued to the indexer.",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "liteclient_cache_hits_total",
			Help: "Number of proof/block reads served from storage.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "liteclient_cache_misses_total",
			Help: "Number of proof/block reads that required a download.",
		}),
		ShardChecks: factory.NewCounter(prometheus.CounterOpts{
			Name: "liteclient_shard_checks_total",
			Help: "Number of shard-block verifications performed.",
		}),
	}
}

// Handler returns an HTTP handler exposing the registry in Prometheus text
// format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
