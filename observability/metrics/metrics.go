package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ModuleMetrics records JSON-RPC module activity: request counts, error
// counts and handler latency, segmented by module and method.
type ModuleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleOnce     sync.Once
	moduleRegistry *ModuleMetrics

	loanOnce     sync.Once
	loanRegistry *LoanMetrics
)

// Module returns the lazily-initialised module metrics registry.
func Module() *ModuleMetrics {
	moduleOnce.Do(func() {
		moduleRegistry = &ModuleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "plnmarket",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module, method and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "plnmarket",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "plnmarket",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(moduleRegistry.requests, moduleRegistry.errors, moduleRegistry.latency)
	})
	return moduleRegistry
}

func normalize(label string) string {
	label = strings.TrimSpace(strings.ToLower(label))
	if label == "" {
		return "unknown"
	}
	return label
}

// Observe records one handled request.
func (m *ModuleMetrics) Observe(module, method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	module = normalize(module)
	method = normalize(method)
	m.requests.WithLabelValues(module, method, normalize(outcome)).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// ObserveError records one failed request with its status code.
func (m *ModuleMetrics) ObserveError(module, method, status string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(normalize(module), normalize(method), normalize(status)).Inc()
}

// LoanMetrics tracks marketplace outcomes independent of the RPC surface.
type LoanMetrics struct {
	created    prometheus.Counter
	repaid     prometheus.Counter
	liquidated prometheus.Counter
	defaulted  prometheus.Counter
	claims     prometheus.Counter
}

// Loans returns the lazily-initialised loan outcome metrics.
func Loans() *LoanMetrics {
	loanOnce.Do(func() {
		counter := func(name, help string) prometheus.Counter {
			c := prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "plnmarket",
				Subsystem: "loans",
				Name:      name,
				Help:      help,
			})
			prometheus.MustRegister(c)
			return c
		}
		loanRegistry = &LoanMetrics{
			created:    counter("created_total", "Loans originated from accepted offers."),
			repaid:     counter("repaid_total", "Loans settled in full with interest."),
			liquidated: counter("liquidated_total", "Loans force-closed by liquidation."),
			defaulted:  counter("defaulted_total", "Loans marked defaulted without recovery."),
			claims:     counter("insurance_claims_total", "Insurance payouts issued to lenders."),
		}
	})
	return loanRegistry
}

func (m *LoanMetrics) LoanCreated() {
	if m != nil {
		m.created.Inc()
	}
}

func (m *LoanMetrics) LoanRepaid() {
	if m != nil {
		m.repaid.Inc()
	}
}

func (m *LoanMetrics) LoanLiquidated() {
	if m != nil {
		m.liquidated.Inc()
	}
}

func (m *LoanMetrics) LoanDefaulted() {
	if m != nil {
		m.defaulted.Inc()
	}
}

func (m *LoanMetrics) InsuranceClaimed() {
	if m != nil {
		m.claims.Inc()
	}
}
