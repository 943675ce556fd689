package api

import (
	"context"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "graylogic_access"

// Metrics holds the Prometheus collectors for access operations plus
// running totals for the JSON metrics endpoint.
type Metrics struct {
	registry *prometheus.Registry

	decisions    *prometheus.CounterVec
	custody      *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	auditDropped prometheus.Counter

	granted  atomic.Int64
	denied   atomic.Int64
	issued   atomic.Int64
	returned atomic.Int64
	rejected atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
}

func newMetrics(hub *Hub) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decisions_total",
			Help:      "Verify decisions by outcome and code.",
		}, []string{"outcome", "code"}),
		custody: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "custody_operations_total",
			Help:      "Key issue and return attempts by action and code.",
		}, []string{"action", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent in the access core per operation.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}, []string{"operation"}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "audit_dropped_total",
			Help:      "Audit entries dropped because the buffer was full.",
		}),
	}

	m.registry.MustRegister(
		m.decisions,
		m.custody,
		m.latency,
		m.auditDropped,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients.",
		}, func() float64 { return float64(hub.ClientCount()) }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeDecision(granted bool, code string, took time.Duration) {
	outcome := "denied"
	switch {
	case code == "storage_error":
		outcome = "error"
		m.failed.Add(1)
	case code != "ok":
		outcome = "rejected"
		m.rejected.Add(1)
	case granted:
		outcome = "granted"
		m.granted.Add(1)
	default:
		m.denied.Add(1)
	}
	m.decisions.WithLabelValues(outcome, code).Inc()
	m.latency.WithLabelValues("verify").Observe(took.Seconds())
}

func (m *Metrics) observeCustody(action, code string, took time.Duration) {
	switch {
	case code == "ok" && action == "issue":
		m.issued.Add(1)
	case code == "ok":
		m.returned.Add(1)
	case code == "storage_error":
		m.failed.Add(1)
	default:
		m.rejected.Add(1)
	}
	m.custody.WithLabelValues(action, code).Inc()
	m.latency.WithLabelValues(action).Observe(took.Seconds())
}

func (m *Metrics) observeAuditDrop() {
	m.dropped.Add(1)
	m.auditDropped.Inc()
}

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	InfluxDB      InfluxMetrics   `json:"influxdb"`
	Database      DatabaseMetrics `json:"database"`
	Credentials   CredentialStats `json:"credentials"`
	Access        AccessMetrics   `json:"access"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected     bool `json:"connected"`
	Subscriptions int  `json:"subscriptions"`
}

// InfluxMetrics contains InfluxDB client statistics.
type InfluxMetrics struct {
	Connected bool `json:"connected"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// CredentialStats contains directory statistics.
type CredentialStats struct {
	Total int `json:"total"`
}

// AccessMetrics counts access operations since start.
type AccessMetrics struct {
	Granted      int64 `json:"granted"`
	Denied       int64 `json:"denied"`
	KeysIssued   int64 `json:"keys_issued"`
	KeysReturned int64 `json:"keys_returned"`
	Rejected     int64 `json:"rejected"`
	Errors       int64 `json:"errors"`
	AuditDropped int64 `json:"audit_dropped"`
}

// credentialCountTimeout bounds the directory count in the metrics handler.
const credentialCountTimeout = 2 * time.Second

// handleMetrics returns system and access metrics as JSON.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Access: AccessMetrics{
			Granted:      s.metrics.granted.Load(),
			Denied:       s.metrics.denied.Load(),
			KeysIssued:   s.metrics.issued.Load(),
			KeysReturned: s.metrics.returned.Load(),
			Rejected:     s.metrics.rejected.Load(),
			Errors:       s.metrics.failed.Load(),
			AuditDropped: s.metrics.dropped.Load(),
		},
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{
			Connected:     s.mqtt.IsConnected(),
			Subscriptions: s.mqtt.SubscriptionCount(),
		}
	}
	if s.influx != nil {
		metrics.InfluxDB.Connected = s.influx.IsConnected()
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), credentialCountTimeout)
	defer cancel()
	if n, err := s.store.Count(ctx); err == nil {
		metrics.Credentials.Total = n
	} else {
		s.logger.Warn("credential count failed", "error", err)
	}

	writeJSON(w, http.StatusOK, metrics)
}
