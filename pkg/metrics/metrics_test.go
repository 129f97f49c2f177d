package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sample returns the summed value of every series in the named family.
func sample(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
		return total
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestMetrics_Simulation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordTick(2 * time.Millisecond)
	m.RecordTick(3 * time.Millisecond)
	m.RecordRollback(ReasonMap)
	m.RecordRollback(ReasonObject)
	m.RecordRollback(ReasonObject)
	m.AddCollisionChecks(12)
	m.SetIndexStats(40, 9, 6)
	m.RecordConsistencyFailure()
	m.SetEntityCount("unit", 30)
	m.SetEntityCount("sensor", 10)
	m.SetSensorDetections(4)

	assert.Equal(t, 2.0, sample(t, reg, "rts_tick_duration_seconds"))
	assert.Equal(t, 3.0, sample(t, reg, "rts_collision_rollbacks_total"))
	assert.Equal(t, 12.0, sample(t, reg, "rts_collision_checks_total"))
	assert.Equal(t, 40.0, sample(t, reg, "rts_quadtree_objects"))
	assert.Equal(t, 9.0, sample(t, reg, "rts_quadtree_occupied_leaves"))
	assert.Equal(t, 6.0, sample(t, reg, "rts_quadtree_max_leaf_load"))
	assert.Equal(t, 1.0, sample(t, reg, "rts_quadtree_consistency_failures_total"))
	assert.Equal(t, 40.0, sample(t, reg, "rts_entities"))
	assert.Equal(t, 4.0, sample(t, reg, "rts_sensor_detections"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTick(time.Millisecond)
		m.RecordRollback(ReasonMap)
		m.SetIndexStats(1, 1, 1)
		m.SetWSConnections(3)
		m.RecordConnectionRejected("rate_limit")
	})
}

func TestMetrics_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/units/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/units/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "rts_http_requests_total" {
			continue
		}
		require.Len(t, mf.GetMetric(), 1, "route pattern must keep label cardinality bounded")
		labels := map[string]string{}
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		assert.Equal(t, "/api/units/{id}", labels["endpoint"])
		assert.Equal(t, "404", labels["status"])
		assert.Equal(t, 3.0, mf.GetMetric()[0].GetCounter().GetValue())
		return
	}
	t.Fatal("rts_http_requests_total not gathered")
}

func TestMetrics_WebSocket(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetWSConnections(2)
	m.IncWSMessages()
	m.IncWSMessages()
	m.RecordConnectionRejected("ws_limit")

	assert.Equal(t, 2.0, sample(t, reg, "rts_websocket_connections_active"))
	assert.Equal(t, 2.0, sample(t, reg, "rts_websocket_messages_total"))
	assert.Equal(t, 1.0, sample(t, reg, "rts_connection_rejected_total"))
}
