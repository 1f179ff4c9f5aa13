// Package metrics exposes daemon counters to Prometheus.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without metrics.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scc_daemon"

// Command results.
const (
	ResultOK   = "ok"
	ResultFail = "fail"
)

// Metrics holds the daemon collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	sessions    prometheus.Gauge
	controllers prometheus.Gauge
	commands    *prometheus.CounterVec // by command and result
	events      *prometheus.CounterVec // by source
	restarts    *prometheus.CounterVec // by companion
}

// New creates collectors registered in a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Connected client sessions",
		}),
		controllers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "controllers",
			Help:      "Attached controllers",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Client commands executed",
		}, []string{"command", "result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events reported to clients for locked or observed sources",
		}, []string{"source"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "companion_restarts_total",
			Help:      "Companion process restarts",
		}, []string{"companion"}),
	}
	m.registry.MustRegister(m.sessions, m.controllers, m.commands, m.events, m.restarts)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// SessionOpened increments the session gauge.
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

// SessionClosed decrements the session gauge.
func (m *Metrics) SessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}

// SetControllers records the attached controller count.
func (m *Metrics) SetControllers(n int) {
	if m != nil {
		m.controllers.Set(float64(n))
	}
}

// Command counts one executed command.
func (m *Metrics) Command(command string, ok bool) {
	if m == nil {
		return
	}
	result := ResultOK
	if !ok {
		result = ResultFail
	}
	m.commands.WithLabelValues(command, result).Inc()
}

// Event counts one reported event.
func (m *Metrics) Event(source string) {
	if m != nil {
		m.events.WithLabelValues(source).Inc()
	}
}

// Restart counts one companion restart.
func (m *Metrics) Restart(companion string) {
	if m != nil {
		m.restarts.WithLabelValues(companion).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve listens on addr and serves /metrics until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return m.serve(ctx, ln)
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
