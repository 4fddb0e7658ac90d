// Package telemetry wires the control plane's prometheus collectors.
// Grounded on the pack's metrics package style (package-level
// promauto.With(registry) vars, namespace/subsystem naming, small
// Record*/Set* helper functions instead of handlers touching
// prometheus types directly).
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Registry is the control plane's dedicated prometheus registry.
var Registry = prometheus.NewRegistry()

var (
	tickDuration = promauto.With(Registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: "controlplane",
		Subsystem: "scheduler",
		Name:      "tick_duration_seconds",
		Help:      "Duration of one scheduler check cycle for a single LiveStrategy.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	inFlightStrategies = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "controlplane",
		Subsystem: "scheduler",
		Name:      "in_flight_strategies",
		Help:      "Number of LiveStrategy check cycles currently executing.",
	})

	signalsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "controlplane",
		Subsystem: "signalgen",
		Name:      "signals_total",
		Help:      "Signals generated, by signal type.",
	}, []string{"signal_type"})

	ordersTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "controlplane",
		Subsystem: "execution",
		Name:      "orders_total",
		Help:      "Orders placed, by side and outcome.",
	}, []string{"side", "outcome"})

	riskBreachesTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "controlplane",
		Subsystem: "risk",
		Name:      "breaches_total",
		Help:      "RiskRule breaches, by rule type and resulting action.",
	}, []string{"rule_type", "action"})

	optimizerJobDuration = promauto.With(Registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: "controlplane",
		Subsystem: "optimizer",
		Name:      "job_duration_seconds",
		Help:      "Wall-clock duration of a completed OptimizationJob.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	optimizerCandidatesTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "controlplane",
		Subsystem: "optimizer",
		Name:      "candidates_total",
		Help:      "Backtested (symbol, strategy) candidates, by outcome.",
	}, []string{"outcome"})
)

// ObserveTickDuration records how long one scheduler check cycle took.
func ObserveTickDuration(seconds float64) { tickDuration.Observe(seconds) }

// SetInFlightStrategies reports the current in-flight check count.
func SetInFlightStrategies(n int) { inFlightStrategies.Set(float64(n)) }

// RecordSignal increments the signal counter for one signal type.
func RecordSignal(signalType string) { signalsTotal.WithLabelValues(signalType).Inc() }

// RecordOrder increments the order counter for one side/outcome pair.
func RecordOrder(side, outcome string) { ordersTotal.WithLabelValues(side, outcome).Inc() }

// RecordRiskBreach increments the breach counter for one rule type/action pair.
func RecordRiskBreach(ruleType, action string) { riskBreachesTotal.WithLabelValues(ruleType, action).Inc() }

// ObserveOptimizerJobDuration records a completed OptimizationJob's wall-clock duration.
func ObserveOptimizerJobDuration(seconds float64) { optimizerJobDuration.Observe(seconds) }

// RecordOptimizerCandidate increments the backtest-candidate counter for one outcome.
func RecordOptimizerCandidate(outcome string) { optimizerCandidatesTotal.WithLabelValues(outcome).Inc() }

// Init registers the standard process/Go runtime collectors alongside
// the control plane's own metrics.
func Init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}

// Handler exposes the registry for a /metrics route.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
