// Package observability exports the sampler's emissions and its own
// health as Prometheus metrics.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dicklesworthstone/hwdash/internal/model"
)

// Prom is both a presenter (every emitted value becomes a gauge) and the
// scheduler's observer.
type Prom struct {
	gatherer prometheus.Gatherer

	values    *prometheus.GaugeVec
	available *prometheus.GaugeVec
	ticks     *prometheus.CounterVec
	tickTime  *prometheus.HistogramVec
	failures  *prometheus.CounterVec
	shutdowns prometheus.Counter
}

// NewProm registers every collector on reg.
func NewProm(reg *prometheus.Registry) *Prom {
	p := &Prom{
		gatherer: reg,
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hwdash_metric_value",
			Help: "Last surfaced value of each telemetry key.",
		}, []string{"key"}),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hwdash_metric_available",
			Help: "1 when the key's last reading carried a value, 0 otherwise.",
		}, []string{"key"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hwdash_ticks_total",
			Help: "Completed sampling ticks per cadence.",
		}, []string{"cadence"}),
		tickTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hwdash_tick_duration_seconds",
			Help:    "Wall time spent in one sampling tick.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"cadence"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hwdash_source_failures_total",
			Help: "Source reads that produced no value.",
		}, []string{"source", "condition"}),
		shutdowns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hwdash_shutdown_triggers_total",
			Help: "Times the idle shutdown fired.",
		}),
	}
	reg.MustRegister(p.values, p.available, p.ticks, p.tickTime, p.failures, p.shutdowns)
	return p
}

func (p *Prom) Emit(e model.Emission) {
	if e.Reading.Cond == model.ClockAnomaly {
		p.available.WithLabelValues(e.Key).Set(1)
		p.values.WithLabelValues(e.Key).Set(0)
		return
	}
	if !e.Reading.Valid() {
		p.available.WithLabelValues(e.Key).Set(0)
		return
	}
	p.available.WithLabelValues(e.Key).Set(1)
	p.values.WithLabelValues(e.Key).Set(e.Reading.Value)
}

func (p *Prom) TickDone(cadence string, took time.Duration) {
	p.ticks.WithLabelValues(cadence).Inc()
	p.tickTime.WithLabelValues(cadence).Observe(took.Seconds())
}

func (p *Prom) SourceFailed(source string, cond model.Condition) {
	p.failures.WithLabelValues(source, cond.String()).Inc()
}

func (p *Prom) ShutdownTriggered() { p.shutdowns.Inc() }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
