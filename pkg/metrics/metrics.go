// Package metrics exposes Prometheus collectors for the simulation, the
// spatial index and the HTTP surface. Label values are bounded; nothing is
// labelled per unit.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rts"

// Rollback reasons
const (
	ReasonMap    = "map"
	ReasonObject = "object"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	tickDuration        prometheus.Histogram
	rollbacks           *prometheus.CounterVec
	collisionChecks     prometheus.Counter
	indexedObjects      prometheus.Gauge
	occupiedLeaves      prometheus.Gauge
	maxLeafLoad         prometheus.Gauge
	consistencyFailures prometheus.Counter
	entities            *prometheus.GaugeVec
	sensorDetections    prometheus.Gauge

	requestLatency     *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	wsConnections      prometheus.Gauge
	wsMessages         prometheus.Counter
	connectionRejected *prometheus.CounterVec
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one simulation tick",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collision_rollbacks_total",
			Help:      "Moves rolled back by collision response",
		}, []string{"reason"}), // Bounded: "map", "object"
		collisionChecks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collision_checks_total",
			Help:      "Objects passed through collision response",
		}),
		indexedObjects: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quadtree_objects",
			Help:      "Objects held by the spatial index",
		}),
		occupiedLeaves: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quadtree_occupied_leaves",
			Help:      "Leaves holding at least one object",
		}),
		maxLeafLoad: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quadtree_max_leaf_load",
			Help:      "Objects in the fullest leaf",
		}),
		consistencyFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quadtree_consistency_failures_total",
			Help:      "Failed index consistency checks",
		}),
		entities: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Live entities by kind",
		}, []string{"kind"}), // Bounded: "unit", "structure", "sensor"
		sensorDetections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_detections",
			Help:      "Units seen by all sensors in the last tick",
		}),
		requestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}), // endpoint is the route pattern
		requestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		wsConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections_active",
			Help:      "Currently connected snapshot observers",
		}),
		wsMessages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_messages_total",
			Help:      "Snapshot messages written to observers",
		}),
		connectionRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_rejected_total",
			Help:      "Requests or connections rejected",
		}, []string{"reason"}), // Bounded: "rate_limit", "ws_limit", "origin"
	}
}

// RecordTick observes one tick's duration
func (m *Metrics) RecordTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}

// RecordRollback counts a rolled back move; reason is ReasonMap or ReasonObject
func (m *Metrics) RecordRollback(reason string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(reason).Inc()
}

// AddCollisionChecks counts objects run through collision response
func (m *Metrics) AddCollisionChecks(n int) {
	if m == nil {
		return
	}
	m.collisionChecks.Add(float64(n))
}

// SetIndexStats publishes the index occupancy gauges
func (m *Metrics) SetIndexStats(objects, occupiedLeaves, maxLeafLoad int) {
	if m == nil {
		return
	}
	m.indexedObjects.Set(float64(objects))
	m.occupiedLeaves.Set(float64(occupiedLeaves))
	m.maxLeafLoad.Set(float64(maxLeafLoad))
}

// RecordConsistencyFailure counts a failed index check
func (m *Metrics) RecordConsistencyFailure() {
	if m == nil {
		return
	}
	m.consistencyFailures.Inc()
}

// SetEntityCount sets the live count for an entity kind
func (m *Metrics) SetEntityCount(kind string, n int) {
	if m == nil {
		return
	}
	m.entities.WithLabelValues(kind).Set(float64(n))
}

// SetSensorDetections publishes the total sensor detections for a tick
func (m *Metrics) SetSensorDetections(n int) {
	if m == nil {
		return
	}
	m.sensorDetections.Set(float64(n))
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(method, endpoint).Observe(d.Seconds())
	m.requestTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

// SetWSConnections updates the observer gauge
func (m *Metrics) SetWSConnections(n int) {
	if m == nil {
		return
	}
	m.wsConnections.Set(float64(n))
}

// IncWSMessages counts one message written to an observer
func (m *Metrics) IncWSMessages() {
	if m == nil {
		return
	}
	m.wsMessages.Inc()
}

// RecordConnectionRejected increments the rejection counter
func (m *Metrics) RecordConnectionRejected(reason string) {
	if m == nil {
		return
	}
	m.connectionRejected.WithLabelValues(reason).Inc()
}

// Middleware records latency and status per chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}
