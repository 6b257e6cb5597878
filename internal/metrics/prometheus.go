package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once         sync.Once
	registry     *prom.Registry
	syncDuration *prom.HistogramVec
	syncOutcomes *prom.CounterVec
	imports      *prom.CounterVec
	activeRepos  prom.Gauge
	tickResults  *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.once.Do(func() {
		pr.syncDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "specsync",
			Name:      "sync_duration_seconds",
			Help:      "Duration of individual repository sync operations",
			Buckets:   prom.DefBuckets,
		}, []string{"repo"})
		pr.syncOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "specsync",
			Name:      "sync_outcomes_total",
			Help:      "Sync outcomes by final status",
		}, []string{"repo", "outcome"})
		pr.imports = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "specsync",
			Name:      "spec_imports_total",
			Help:      "Spec import attempts by result",
		}, []string{"repo", "result"})
		pr.activeRepos = prom.NewGauge(prom.GaugeOpts{
			Namespace: "specsync",
			Name:      "active_repositories",
			Help:      "Number of repository configs included in the periodic sweep",
		})
		pr.tickResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "specsync",
			Name:      "tick_repositories_total",
			Help:      "Per-tick repository results",
		}, []string{"result"})
		reg.MustRegister(pr.syncDuration, pr.syncOutcomes, pr.imports, pr.activeRepos, pr.tickResults)
	})
	return pr
}

// Handler returns an http.Handler serving the registry.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusRecorder) ObserveSyncDuration(repo string, d time.Duration) {
	if p == nil || p.syncDuration == nil {
		return
	}
	p.syncDuration.WithLabelValues(repo).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncSyncOutcome(repo, outcome string) {
	if p == nil || p.syncOutcomes == nil {
		return
	}
	p.syncOutcomes.WithLabelValues(repo, outcome).Inc()
}

func (p *PrometheusRecorder) IncImports(repo string, succeeded, failed int) {
	if p == nil || p.imports == nil {
		return
	}
	if succeeded > 0 {
		p.imports.WithLabelValues(repo, "success").Add(float64(succeeded))
	}
	if failed > 0 {
		p.imports.WithLabelValues(repo, "failure").Add(float64(failed))
	}
}

func (p *PrometheusRecorder) SetActiveRepos(n int) {
	if p == nil || p.activeRepos == nil {
		return
	}
	p.activeRepos.Set(float64(n))
}

func (p *PrometheusRecorder) IncTick(succeeded, failed int) {
	if p == nil || p.tickResults == nil {
		return
	}
	if succeeded > 0 {
		p.tickResults.WithLabelValues("success").Add(float64(succeeded))
	}
	if failed > 0 {
		p.tickResults.WithLabelValues("failure").Add(float64(failed))
	}
}
