// Copyright (c) 2024-present OpenAssist Contributors. All Rights Reserved.
// See LICENSE.txt for license information.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	MetricsNamespace       = "openassist"
	MetricsSubsystemSystem = "system"
	MetricsSubsystemHTTP   = "http"
	MetricsSubsystemAPI    = "api"
	MetricsSubsystemMCP    = "mcp"
)

type Metrics interface {
	GetRegistry() *prometheus.Registry

	ObserveAPIEndpointDuration(handler, method, statusCode string, elapsed float64)

	IncrementHTTPRequests()
	IncrementHTTPErrors()

	ObserveServerStart(result string)
	ObserveServerStop()
	ObserveToolCall(serverID, result string, elapsed float64)
}

// metrics instruments the MCP manager with prometheus.
type metrics struct {
	registry *prometheus.Registry

	startTime prometheus.Gauge

	apiTime *prometheus.HistogramVec

	httpRequestsTotal prometheus.Counter
	httpErrorsTotal   prometheus.Counter

	serverStartsTotal *prometheus.CounterVec
	serverStopsTotal  prometheus.Counter
	toolCallsTotal    *prometheus.CounterVec
	toolCallTime      *prometheus.HistogramVec
}

// NewMetrics creates a new metrics collector.
func NewMetrics() Metrics {
	m := &metrics{}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
		Namespace: MetricsNamespace,
	}))
	m.registry.MustRegister(collectors.NewGoCollector())

	m.startTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemSystem,
		Name:      "start_timestamp_seconds",
		Help:      "The time the service started.",
	})
	m.startTime.SetToCurrentTime()
	m.registry.MustRegister(m.startTime)

	m.apiTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystemAPI,
			Name:      "time_seconds",
			Help:      "Time to execute the api handler",
		},
		[]string{"handler", "method", "status_code"},
	)
	m.registry.MustRegister(m.apiTime)

	m.httpRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemHTTP,
		Name:      "requests_total",
		Help:      "The total number of http API requests.",
	})
	m.registry.MustRegister(m.httpRequestsTotal)

	m.httpErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemHTTP,
		Name:      "errors_total",
		Help:      "The total number of http API errors.",
	})
	m.registry.MustRegister(m.httpErrorsTotal)

	m.serverStartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemMCP,
		Name:      "server_starts_total",
		Help:      "The total number of MCP server start attempts.",
	}, []string{"result"})
	m.registry.MustRegister(m.serverStartsTotal)

	m.serverStopsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemMCP,
		Name:      "server_stops_total",
		Help:      "The total number of MCP server stops.",
	})
	m.registry.MustRegister(m.serverStopsTotal)

	m.toolCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemMCP,
		Name:      "tool_calls_total",
		Help:      "The total number of MCP tool calls.",
	}, []string{"server_id", "result"})
	m.registry.MustRegister(m.toolCallsTotal)

	m.toolCallTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemMCP,
		Name:      "tool_call_seconds",
		Help:      "Time to execute an MCP tool call.",
	}, []string{"server_id"})
	m.registry.MustRegister(m.toolCallTime)

	return m
}

func (m *metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

func (m *metrics) ObserveAPIEndpointDuration(handler, method, statusCode string, elapsed float64) {
	if m != nil {
		m.apiTime.With(prometheus.Labels{"handler": handler, "method": method, "status_code": statusCode}).Observe(elapsed)
	}
}

func (m *metrics) IncrementHTTPRequests() {
	if m != nil {
		m.httpRequestsTotal.Inc()
	}
}

func (m *metrics) IncrementHTTPErrors() {
	if m != nil {
		m.httpErrorsTotal.Inc()
	}
}

func (m *metrics) ObserveServerStart(result string) {
	if m != nil {
		m.serverStartsTotal.With(prometheus.Labels{"result": result}).Inc()
	}
}

func (m *metrics) ObserveServerStop() {
	if m != nil {
		m.serverStopsTotal.Inc()
	}
}

func (m *metrics) ObserveToolCall(serverID, result string, elapsed float64) {
	if m != nil {
		m.toolCallsTotal.With(prometheus.Labels{"server_id": serverID, "result": result}).Inc()
		m.toolCallTime.With(prometheus.Labels{"server_id": serverID}).Observe(elapsed)
	}
}

type errorLoggerWrapper struct {
}

func (el *errorLoggerWrapper) Println(v ...interface{}) {
	logrus.Warn("metric handler error", v)
}

// NewMetricsHandler creates an HTTP handler to expose metrics.
func NewMetricsHandler(metricsService Metrics) http.Handler {
	return promhttp.HandlerFor(metricsService.GetRegistry(), promhttp.HandlerOpts{
		ErrorLog: &errorLoggerWrapper{},
	})
}
