package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives custody outcomes. Services accept any Recorder so tests
// can run without a registry.
type Recorder interface {
	CheckIn(classroom string)
	CheckOut(method string)
	Rejected(operation, reason string)
	PINFailure()
	Override()
}

// Nop discards every observation
type Nop struct{}

func (Nop) CheckIn(string)          {}
func (Nop) CheckOut(string)         {}
func (Nop) Rejected(string, string) {}
func (Nop) PINFailure()             {}
func (Nop) Override()               {}

// Prometheus exports custody counters on its own registry
type Prometheus struct {
	registry    *prometheus.Registry
	checkIns    *prometheus.CounterVec
	checkOuts   *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	pinFailures prometheus.Counter
	overrides   prometheus.Counter
}

// NewPrometheus creates the collectors and registers them with runtime collectors
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		checkIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kidcheck",
			Name:      "checkins_total",
			Help:      "Children admitted, by classroom.",
		}, []string{"classroom"}),
		checkOuts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kidcheck",
			Name:      "checkouts_total",
			Help:      "Custody releases, by pickup method.",
		}, []string{"method"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kidcheck",
			Name:      "rejections_total",
			Help:      "Refused custody operations, by operation and reason.",
		}, []string{"operation", "reason"}),
		pinFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kidcheck",
			Name:      "pin_failures_total",
			Help:      "Checkout attempts with a wrong PIN.",
		}),
		overrides: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kidcheck",
			Name:      "leader_overrides_total",
			Help:      "Emergency releases by a leader.",
		}),
	}
	p.registry.MustRegister(
		p.checkIns,
		p.checkOuts,
		p.rejections,
		p.pinFailures,
		p.overrides,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) CheckIn(classroom string) { p.checkIns.WithLabelValues(classroom).Inc() }
func (p *Prometheus) CheckOut(method string)   { p.checkOuts.WithLabelValues(method).Inc() }
func (p *Prometheus) PINFailure()              { p.pinFailures.Inc() }
func (p *Prometheus) Override()                { p.overrides.Inc() }

func (p *Prometheus) Rejected(operation, reason string) {
	p.rejections.WithLabelValues(operation, reason).Inc()
}

// Registry exposes the underlying registry
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
