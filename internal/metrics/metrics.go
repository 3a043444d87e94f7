// Package metrics exposes Prometheus collectors on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/and161185/campus-board/internal/errs"
)

const namespace = "campusboard"

// Metrics holds the board's collectors.
type Metrics struct {
	reg *prometheus.Registry

	rpcTotal    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	content     *prometheus.CounterVec
	httpTotal   *prometheus.CounterVec
}

// New builds a registry with process and Go runtime collectors plus the board's own.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		rpcTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "grpc", Name: "requests_total",
			Help: "gRPC requests by method and status code.",
		}, []string{"method", "code"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "grpc", Name: "request_duration_seconds",
			Help:    "gRPC request latency by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		content: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "content_operations_total",
			Help: "Content lifecycle operations by operation and outcome kind.",
		}, []string{"op", "result"}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "admin", Name: "http_requests_total",
			Help: "Admin HTTP requests by route and status.",
		}, []string{"route", "status"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.rpcTotal, m.rpcDuration, m.content, m.httpTotal,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveRPC records one finished RPC.
func (m *Metrics) ObserveRPC(method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcTotal.WithLabelValues(method, code).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveContent records the outcome of a content operation; err nil counts as "ok".
func (m *Metrics) ObserveContent(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = errs.KindOf(err).String()
	}
	m.content.WithLabelValues(op, result).Inc()
}

// ObserveHTTP records one admin HTTP request.
func (m *Metrics) ObserveHTTP(route, status string) {
	if m == nil {
		return
	}
	m.httpTotal.WithLabelValues(route, status).Inc()
}
