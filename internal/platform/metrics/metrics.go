package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the lifecycle subsystem.
type Metrics struct {
	RecordsStored      *prometheus.CounterVec
	RecordsRetrieved   *prometheus.CounterVec
	IntegrityFailures  prometheus.Counter
	DecryptionFailures prometheus.Counter
	AuditAppendFailed  prometheus.Counter

	SweepRuns     *prometheus.CounterVec
	SweepDuration prometheus.Histogram
	RecordsSwept  *prometheus.CounterVec
}

// New creates all metrics against the given registerer. Production wiring
// passes prometheus.DefaultRegisterer; tests pass a fresh registry so that
// repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsStored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_records_stored_total",
			Help: "Total secure records stored, by data category",
		}, []string{"category"}),
		RecordsRetrieved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_records_retrieved_total",
			Help: "Total secure record retrievals, by outcome",
		}, []string{"outcome"}),
		IntegrityFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodian_integrity_failures_total",
			Help: "Checksum mismatches detected on retrieval",
		}),
		DecryptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodian_decryption_failures_total",
			Help: "Ciphertexts that could not be opened with the current key",
		}),
		AuditAppendFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodian_audit_append_failures_total",
			Help: "Audit log appends that failed and were discarded",
		}),
		SweepRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_sweep_runs_total",
			Help: "Retention sweep executions, by kind and outcome",
		}, []string{"kind", "outcome"}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "custodian_sweep_duration_seconds",
			Help:    "Wall-clock duration of retention sweeps",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		RecordsSwept: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_records_swept_total",
			Help: "Records transitioned by retention sweeps, by action",
		}, []string{"action"}),
	}
}
