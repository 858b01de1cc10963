package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the verification subsystem.
type Metrics struct {
	VerificationsSubmitted prometheus.Counter
	VerificationsConfirmed prometheus.Counter
	HashMismatches         prometheus.Counter
	UnknownOutcomes        prometheus.Counter
	LedgerSubmitRetries    prometheus.Counter
	LedgerSubmitDuration   prometheus.Histogram
	ClaimConflicts         prometheus.Counter
	ProofCacheHits         prometheus.Counter
	ProofCacheMisses       prometheus.Counter
	ReconcileFindings      *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics on a specific registry. Tests use a
// fresh registry per instance to avoid duplicate registration panics.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VerificationsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "provenance_verifications_submitted_total",
			Help: "Ledger verification submissions attempted",
		}),
		VerificationsConfirmed: factory.NewCounter(prometheus.CounterOpts{
			Name: "provenance_verifications_confirmed_total",
			Help: "Ledger verification submissions confirmed by commit",
		}),
		HashMismatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "provenance_hash_mismatches_total",
			Help: "Submissions rejected because the ledger holds a different hash",
		}),
		UnknownOutcomes: factory.NewCounter(prometheus.CounterOpts{
			Name: "provenance_unknown_outcomes_total",
			Help: "Ledger submissions whose outcome was unknown at deadline",
		}),
		LedgerSubmitRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "provenance_ledger_submit_retries_total",
			Help: "Identical-payload retries after connectivity failures",
		}),
		LedgerSubmitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "provenance_ledger_submit_duration_seconds",
			Help:    "Wall time from submission to observed commit",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ClaimConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "provenance_claim_conflicts_total",
			Help: "Claim attempts lost to another reviewer",
		}),
		ProofCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "provenance_proof_cache_hits_total",
			Help: "Proof cache hits on ledger status reads",
		}),
		ProofCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "provenance_proof_cache_misses_total",
			Help: "Proof cache misses on ledger status reads",
		}),
		ReconcileFindings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provenance_reconcile_findings_total",
			Help: "Reconciliation outcomes by finding",
		}, []string{"finding"}),
	}
}

// RecordReconcileFinding counts one reconciliation outcome.
func (m *Metrics) RecordReconcileFinding(finding string) {
	if m == nil {
		return
	}
	m.ReconcileFindings.WithLabelValues(finding).Inc()
}
