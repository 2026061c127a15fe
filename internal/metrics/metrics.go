// Package metrics exposes the decision core's counters on a Prometheus
// endpoint.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"airbrain/internal/logger"
)

// Metrics holds the instrument set. All instruments live in a private
// registry so tests can run side by side.
type Metrics struct {
	registry *prometheus.Registry

	Epochs       prometheus.Counter
	Handshakes   prometheus.Counter
	Deauths      prometheus.Counter
	Associations prometheus.Counter
	Misses       prometheus.Counter
	Evictions    prometheus.Counter

	Mood       prometheus.Gauge
	Channel    prometheus.Gauge
	VisibleAPs prometheus.Gauge
}

// New creates the instrument set.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Epochs: factory.NewCounter(prometheus.CounterOpts{
			Name: "airbrain_epochs_total",
			Help: "Completed decision epochs.",
		}),
		Handshakes: factory.NewCounter(prometheus.CounterOpts{
			Name: "airbrain_handshakes_total",
			Help: "Handshake captures credited to the scheduler.",
		}),
		Deauths: factory.NewCounter(prometheus.CounterOpts{
			Name: "airbrain_deauths_total",
			Help: "Deauthentication frames dispatched.",
		}),
		Associations: factory.NewCounter(prometheus.CounterOpts{
			Name: "airbrain_associations_total",
			Help: "Association attempts dispatched.",
		}),
		Misses: factory.NewCounter(prometheus.CounterOpts{
			Name: "airbrain_misses_total",
			Help: "Failed environment queries or vanished targets.",
		}),
		Evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "airbrain_entity_evictions_total",
			Help: "Target entities evicted by garbage collection.",
		}),
		Mood: factory.NewGauge(prometheus.GaugeOpts{
			Name: "airbrain_mood",
			Help: "Current mood as its enum value.",
		}),
		Channel: factory.NewGauge(prometheus.GaugeOpts{
			Name: "airbrain_channel",
			Help: "Channel recon is currently parked on.",
		}),
		VisibleAPs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "airbrain_visible_aps",
			Help: "Access points in the last environment sync.",
		}),
	}
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the metrics endpoint until the context is cancelled.
func (m *Metrics) Serve(ctx context.Context, listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: listen, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Metrics endpoint listening on %s", listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
