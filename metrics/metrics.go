// Package metrics exposes crawl counters and timings for Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/use-agent/sitecheck/models"
	"github.com/use-agent/sitecheck/prober"
)

// Page outcomes.
const (
	OutcomePassed     = "passed"
	OutcomeFailed     = "failed"
	OutcomeLoadFailed = "load_failed"
)

// Metrics holds the sitecheck collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	pagesTotal     *prometheus.CounterVec
	checksTotal    *prometheus.CounterVec
	probeDuration  *prometheus.HistogramVec
	sessionsActive prometheus.Gauge
}

// New creates the collectors on a private registry, together with the
// standard Go and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		pagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecheck_pages_total",
				Help: "Pages visited, by outcome",
			},
			[]string{"outcome"},
		),
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecheck_checks_total",
				Help: "Check records produced, by check name and result",
			},
			[]string{"check", "result"},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitecheck_probe_duration_seconds",
				Help:    "HTTP probe latency in seconds",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"outcome"},
		),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitecheck_sessions_active",
			Help: "Crawl sessions currently running",
		}),
	}

	registry.MustRegister(
		m.pagesTotal,
		m.checksTotal,
		m.probeDuration,
		m.sessionsActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePage counts a finished page and each of its records.
func (m *Metrics) ObservePage(p *models.PageResult, loaded bool) {
	if m == nil {
		return
	}
	switch {
	case !loaded:
		m.pagesTotal.WithLabelValues(OutcomeLoadFailed).Inc()
	case p.FailedCount() > 0:
		m.pagesTotal.WithLabelValues(OutcomeFailed).Inc()
	default:
		m.pagesTotal.WithLabelValues(OutcomePassed).Inc()
	}
	for _, c := range p.Checks() {
		m.checksTotal.WithLabelValues(checkLabel(c.Name), result(c.Passed)).Inc()
	}
}

// checkLabel folds indexed record names such as button_click_2 into their
// prefix so the label set stays bounded.
func checkLabel(name string) string {
	i := strings.LastIndexByte(name, '_')
	if i < 0 || i == len(name)-1 {
		return name
	}
	for _, r := range name[i+1:] {
		if r < '0' || r > '9' {
			return name
		}
	}
	return name[:i]
}

// SessionStarted and SessionFinished track the active-session gauge.
func (m *Metrics) SessionStarted() {
	if m != nil {
		m.sessionsActive.Inc()
	}
}

func (m *Metrics) SessionFinished() {
	if m != nil {
		m.sessionsActive.Dec()
	}
}

// InstrumentProber wraps p so every probe's latency is observed.
func (m *Metrics) InstrumentProber(p prober.Prober) prober.Prober {
	if m == nil {
		return p
	}
	return prober.Func(func(ctx context.Context, url string, timeout time.Duration) (int, error) {
		start := time.Now()
		code, err := p.Probe(ctx, url, timeout)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.probeDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		return code, err
	})
}

func result(passed bool) string {
	if passed {
		return "pass"
	}
	return "fail"
}
