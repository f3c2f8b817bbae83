// Package metrics exposes Prometheus metrics for price monitoring sweeps.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"game-price-tracker/internal/model"
)

// Registry holds the tracker's collectors on a private prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	Sweeps           prometheus.Counter
	SweepErrors      prometheus.Counter
	SweepDuration    prometheus.Histogram
	SweepInProgress  prometheus.Gauge
	GamesChecked     prometheus.Counter
	DealsUpdated     prometheus.Counter
	Alerts           *prometheus.CounterVec
	UpstreamFailures prometheus.Counter
}

// NewRegistry creates and registers all collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_sweeps_total",
			Help: "Completed monitoring sweeps",
		}),
		SweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_sweep_errors_total",
			Help: "Games whose reconciliation failed with an unexpected error",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_sweep_duration_seconds",
			Help:    "Wall time of one monitoring sweep",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		SweepInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_sweep_in_progress",
			Help: "1 while a sweep is running",
		}),
		GamesChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_games_checked_total",
			Help: "Games visited by sweeps",
		}),
		DealsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_deals_updated_total",
			Help: "Deals created or refreshed by reconciliation",
		}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_alerts_total",
			Help: "Price alerts raised, by type",
		}, []string{"type"}),
		UpstreamFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_upstream_failures_total",
			Help: "Games whose offers could not be fetched from the price source",
		}),
	}

	r.reg.MustRegister(
		r.Sweeps,
		r.SweepErrors,
		r.SweepDuration,
		r.SweepInProgress,
		r.GamesChecked,
		r.DealsUpdated,
		r.Alerts,
		r.UpstreamFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveSweep records the totals of a finished sweep.
func (r *Registry) ObserveSweep(stats *model.MonitoringStats) {
	if r == nil || stats == nil {
		return
	}
	r.Sweeps.Inc()
	r.GamesChecked.Add(float64(stats.GamesChecked))
	r.DealsUpdated.Add(float64(stats.DealsUpdated))
	r.SweepErrors.Add(float64(stats.Errors))
	r.SweepDuration.Observe(stats.DurationSeconds)
}

// ObserveAlert counts one raised alert.
func (r *Registry) ObserveAlert(t model.AlertType) {
	if r == nil {
		return
	}
	r.Alerts.WithLabelValues(string(t)).Inc()
}

// ObserveUpstreamFailure counts a game whose offers could not be fetched.
func (r *Registry) ObserveUpstreamFailure() {
	if r == nil {
		return
	}
	r.UpstreamFailures.Inc()
}

// SetSweepInProgress flips the in-progress gauge.
func (r *Registry) SetSweepInProgress(running bool) {
	if r == nil {
		return
	}
	if running {
		r.SweepInProgress.Set(1)
		return
	}
	r.SweepInProgress.Set(0)
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Timeout: 5 * time.Second})
}
