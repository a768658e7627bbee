// Package metrics exposes Prometheus instrumentation for an assessment run.
// Every recorder is safe to call on a nil *Metrics.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "cogtest"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	transitions       *prometheus.CounterVec
	sessionsStarted   *prometheus.CounterVec
	submits           *prometheus.CounterVec
	restarts          prometheus.Counter
	completions       prometheus.Counter
	bootstrapDuration prometheus.Histogram
	idleGates         *prometheus.CounterVec
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	storeDegraded     prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_transitions_total",
				Help:      "Orchestrator state transitions by target state.",
			},
			[]string{"state"},
		),
		sessionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_started_total",
				Help:      "Module sessions started, by mode (fresh or resume).",
			},
			[]string{"mode"},
		),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Idle restarts confirmed by the user.",
		}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Assessments completed.",
		}),
		bootstrapDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bootstrap_duration_seconds",
			Help:      "Time from bootstrap start to a settled state.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		submits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submits_total",
				Help:      "Module submissions by outcome.",
			},
			[]string{"outcome"},
		),
		idleGates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idle_gates_total",
				Help:      "Idle gates shown by kind.",
			},
			[]string{"kind"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Backend HTTP requests by method and status code.",
			},
			[]string{"method", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_request_duration_seconds",
				Help:      "Duration of backend HTTP requests.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method"},
		),
		storeDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_degraded",
			Help:      "1 when persistence has fallen back to memory.",
		}),
	}

	m.reg.MustRegister(
		m.transitions,
		m.sessionsStarted,
		m.submits,
		m.restarts,
		m.completions,
		m.bootstrapDuration,
		m.idleGates,
		m.requests,
		m.requestDuration,
		m.storeDegraded,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) SessionStarted(resume bool) {
	if m == nil {
		return
	}
	mode := "fresh"
	if resume {
		mode = "resume"
	}
	m.sessionsStarted.WithLabelValues(mode).Inc()
}

func (m *Metrics) Restart() {
	if m == nil {
		return
	}
	m.restarts.Inc()
}

func (m *Metrics) Complete() {
	if m == nil {
		return
	}
	m.completions.Inc()
}

func (m *Metrics) ObserveBootstrap(d time.Duration) {
	if m == nil {
		return
	}
	m.bootstrapDuration.Observe(d.Seconds())
}

func (m *Metrics) Submit(outcome string) {
	if m == nil {
		return
	}
	m.submits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IdleGate(kind string) {
	if m == nil {
		return
	}
	m.idleGates.WithLabelValues(kind).Inc()
}

func (m *Metrics) StoreDegraded(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.storeDegraded.Set(1)
	} else {
		m.storeDegraded.Set(0)
	}
}

// Transport instruments next with request counts and latencies.
func (m *Metrics) Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if m == nil {
		return next
	}
	return promhttp.InstrumentRoundTripperCounter(m.requests,
		promhttp.InstrumentRoundTripperDuration(m.requestDuration, next))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve listens on addr and serves /metrics until ctx is cancelled. It
// returns once the listener is bound; errors after that are logged.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return nil
}
