// Package metrics exposes the daemon's prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walletd"

const (
	outcomeDelivered     = "delivered"
	outcomeDropped       = "dropped"
	outcomeFailed        = "delivery_failed"
	outcomeInboxOverflow = "inbox_overflow"
)

// Metrics satisfies the session observer and the dispatcher recorder.
type Metrics struct {
	registry  *prometheus.Registry
	commands  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	events    *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	listeners prometheus.Gauge
	backups   prometheus.Gauge
	streams   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands dispatched, by action and result code (0 is success).",
		}, []string{"action", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent in one command, including the wait for the exclusive section.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"action"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_events_total",
			Help:      "Engine events by routing outcome.",
		}, []string{"outcome"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_rejected_total",
			Help:      "Transport requests refused before dispatch.",
		}, []string{"reason"}),
		listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listeners_active",
			Help:      "Live listener subscriptions.",
		}),
		backups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_handles_open",
			Help:      "Backup handles not yet closed.",
		}),
		streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delivery_streams_open",
			Help:      "Connected delivery channels.",
		}),
	}
	m.registry.MustRegister(
		m.commands, m.latency, m.events, m.rejected,
		m.listeners, m.backups, m.streams,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) CommandHandled(action string, code int, elapsed time.Duration) {
	m.commands.WithLabelValues(action, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(action).Observe(elapsed.Seconds())
}

func (m *Metrics) EventDelivered() { m.events.WithLabelValues(outcomeDelivered).Inc() }
func (m *Metrics) EventDropped()   { m.events.WithLabelValues(outcomeDropped).Inc() }
func (m *Metrics) DeliveryFailed() { m.events.WithLabelValues(outcomeFailed).Inc() }
func (m *Metrics) InboxOverflow()  { m.events.WithLabelValues(outcomeInboxOverflow).Inc() }

func (m *Metrics) ListenersActive(n int)   { m.listeners.Set(float64(n)) }
func (m *Metrics) BackupHandlesOpen(n int) { m.backups.Set(float64(n)) }

// RequestRejected counts transport refusals such as rate_limited or
// unauthorized.
func (m *Metrics) RequestRejected(reason string) { m.rejected.WithLabelValues(reason).Inc() }

func (m *Metrics) StreamOpened() { m.streams.Inc() }
func (m *Metrics) StreamClosed() { m.streams.Dec() }
