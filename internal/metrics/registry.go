// Package metrics wires the node's Prometheus registry (SPEC_FULL.md
// §C9 ADDED). None of the retrieved example repos import
// prometheus/client_golang directly for instrumentation (the nearest
// relative, yduwcui-ai-gateway, wires it through an OTel metric reader
// with a much heavier exporter stack than this node needs), so this
// package uses the library the ecosystem itself recommends for exposing
// a /metrics endpoint rather than hand-rolling exposition-format text
// the way None9527-NGOClaw's monitoring package does.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the node exports, grouped by the
// SPEC_FULL.md component that owns it.
type Registry struct {
	registry *prometheus.Registry

	// C4 Process Supervisor
	SupervisorRestarts        *prometheus.CounterVec
	SupervisorCrashes         *prometheus.CounterVec
	SupervisorStartupFailures *prometheus.CounterVec
	SupervisorRSSBytes        *prometheus.GaugeVec
	SupervisorCPUPercent      *prometheus.GaugeVec

	// C7 Streaming Proxy & Task Engine
	TasksTotal      *prometheus.CounterVec
	TaskDuration    *prometheus.HistogramVec
	TasksInFlight   *prometheus.GaugeVec
	UpstreamTokens  *prometheus.CounterVec

	// C8 Tunnel Message Router
	TunnelMessagesTotal *prometheus.CounterVec
	TunnelPeersActive   prometheus.Gauge

	// C5 Backend Registry
	BackendSwitches *prometheus.CounterVec
}

// New builds and registers every metric against a fresh registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		SupervisorRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshnode",
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Total supervised backend restarts, by backend.",
		}, []string{"backend"}),
		SupervisorCrashes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshnode",
			Subsystem: "supervisor",
			Name:      "crashes_total",
			Help:      "Total unexpected backend process exits, by backend.",
		}, []string{"backend"}),
		SupervisorStartupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshnode",
			Subsystem: "supervisor",
			Name:      "startup_failures_total",
			Help:      "Total backend start attempts that failed readiness, by backend.",
		}, []string{"backend"}),
		SupervisorRSSBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "meshnode",
			Subsystem: "supervisor",
			Name:      "rss_bytes",
			Help:      "Resident set size of the supervised backend process.",
		}, []string{"backend"}),
		SupervisorCPUPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "meshnode",
			Subsystem: "supervisor",
			Name:      "cpu_percent",
			Help:      "Sampled CPU percent of the supervised backend process.",
		}, []string{"backend"}),
		TasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshnode",
			Subsystem: "proxy",
			Name:      "tasks_total",
			Help:      "Total tasks dispatched to a backend, by backend and terminal state.",
		}, []string{"backend", "state"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "meshnode",
			Subsystem: "proxy",
			Name:      "task_duration_seconds",
			Help:      "Task wall-clock duration from dispatch to terminal state.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		TasksInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "meshnode",
			Subsystem: "proxy",
			Name:      "tasks_in_flight",
			Help:      "Tasks currently pending or running, by backend.",
		}, []string{"backend"}),
		UpstreamTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshnode",
			Subsystem: "proxy",
			Name:      "upstream_tokens_total",
			Help:      "Total prompt/completion tokens reported by a backend, by backend and kind.",
		}, []string{"backend", "kind"}),
		TunnelMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshnode",
			Subsystem: "tunnel",
			Name:      "messages_total",
			Help:      "Total tunnel envelopes processed, by message type and direction.",
		}, []string{"type", "direction"}),
		TunnelPeersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "meshnode",
			Subsystem: "tunnel",
			Name:      "peers_active",
			Help:      "Currently connected tunnel peers.",
		}),
		BackendSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshnode",
			Subsystem: "registry",
			Name:      "backend_switches_total",
			Help:      "Total active-backend switches, by target backend.",
		}, []string{"backend"}),
	}

	reg.MustRegister(
		r.SupervisorRestarts, r.SupervisorCrashes, r.SupervisorStartupFailures,
		r.SupervisorRSSBytes, r.SupervisorCPUPercent,
		r.TasksTotal, r.TaskDuration, r.TasksInFlight, r.UpstreamTokens,
		r.TunnelMessagesTotal, r.TunnelPeersActive,
		r.BackendSwitches,
	)
	return r
}

// Handler serves the registry in Prometheus exposition format, mounted
// at /metrics per spec.md §6.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
