package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type lendingMetrics struct {
	instructions *prometheus.CounterVec
	errors       *prometheus.CounterVec
	oracleReads  *prometheus.CounterVec
	fallbacks    prometheus.Counter
	flashLoans   *prometheus.CounterVec
	flashFees    prometheus.Counter
}

type runtimeMetrics struct {
	transactions *prometheus.CounterVec
	latency      prometheus.Histogram
}

var (
	lendingMetricsOnce sync.Once
	lendingRegistry    *lendingMetrics

	runtimeMetricsOnce sync.Once
	runtimeRegistry    *runtimeMetrics
)

// Lending returns the lazily-initialised metrics registry for the lending
// program.
func Lending() *lendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &lendingMetrics{
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lending",
				Subsystem: "program",
				Name:      "instructions_total",
				Help:      "Lending instructions processed segmented by instruction and outcome.",
			}, []string{"instruction", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lending",
				Subsystem: "program",
				Name:      "errors_total",
				Help:      "Lending instruction failures segmented by instruction and result code.",
			}, []string{"instruction", "code"}),
			oracleReads: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lending",
				Subsystem: "oracle",
				Name:      "reads_total",
				Help:      "Oracle price reads segmented by source and outcome.",
			}, []string{"source", "outcome"}),
			fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lending",
				Subsystem: "oracle",
				Name:      "fallbacks_total",
				Help:      "Count of prices served by the secondary feed after the primary feed failed.",
			}),
			flashLoans: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lending",
				Subsystem: "flash_loan",
				Name:      "events_total",
				Help:      "Flash loan borrow and repay events.",
			}, []string{"stage"}),
			flashFees: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lending",
				Subsystem: "flash_loan",
				Name:      "fees_total",
				Help:      "Total flash loan fees collected in token base units.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.instructions,
			lendingRegistry.errors,
			lendingRegistry.oracleReads,
			lendingRegistry.fallbacks,
			lendingRegistry.flashLoans,
			lendingRegistry.flashFees,
		)
	})
	return lendingRegistry
}

// RecordInstruction records the outcome of an instruction. An empty code
// marks success.
func (m *lendingMetrics) RecordInstruction(instruction, code string) {
	if m == nil {
		return
	}
	instruction = normalizeLabel(instruction)
	if code == "" {
		m.instructions.WithLabelValues(instruction, "ok").Inc()
		return
	}
	m.instructions.WithLabelValues(instruction, "error").Inc()
	m.errors.WithLabelValues(instruction, code).Inc()
}

func (m *lendingMetrics) RecordOracleRead(source string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "rejected"
	}
	m.oracleReads.WithLabelValues(normalizeLabel(source), outcome).Inc()
}

func (m *lendingMetrics) RecordOracleFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *lendingMetrics) RecordFlashBorrow() {
	if m == nil {
		return
	}
	m.flashLoans.WithLabelValues("borrow").Inc()
}

func (m *lendingMetrics) RecordFlashRepay(fee uint64) {
	if m == nil {
		return
	}
	m.flashLoans.WithLabelValues("repay").Inc()
	m.flashFees.Add(float64(fee))
}

// Runtime returns the metrics registry for transaction execution.
func Runtime() *runtimeMetrics {
	runtimeMetricsOnce.Do(func() {
		runtimeRegistry = &runtimeMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lending",
				Subsystem: "runtime",
				Name:      "transactions_total",
				Help:      "Transactions processed segmented by outcome.",
			}, []string{"outcome"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "lending",
				Subsystem: "runtime",
				Name:      "transaction_duration_seconds",
				Help:      "Latency distribution for transaction execution.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(runtimeRegistry.transactions, runtimeRegistry.latency)
	})
	return runtimeRegistry
}

func (m *runtimeMetrics) Observe(err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "committed"
	if err != nil {
		outcome = "aborted"
	}
	m.transactions.WithLabelValues(outcome).Inc()
	m.latency.Observe(duration.Seconds())
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
