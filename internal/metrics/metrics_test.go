package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrivateRegistry(t *testing.T) {
	a, err := New(nil)
	require.NoError(t, err)
	b, err := New(nil)
	require.NoError(t, err, "Отдельные реестры не конфликтуют")

	a.ObserveTick(time.Millisecond)
	a.ObserveTick(time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(a.ticks))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ticks))
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err, "Повторная регистрация в одном реестре должна давать ошибку")
}

func TestCountersAndGauges(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	m.SetBackend("matter", []string{"arcade", "matter"})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeBackend.WithLabelValues("matter")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeBackend.WithLabelValues("arcade")))

	m.BackendSwitch("matter", "failed")
	m.TerrainFallback()
	m.Rollback()
	m.Action("jump")
	m.InputDropped()
	m.SetChunks(3, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.switches.WithLabelValues("matter", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rollbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("jump")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.droppedInput))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.residentChunks))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	m.ObserveTick(time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(m.Gatherer()).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "simulation_ticks_total 1"), "Ожидался счётчик тиков в выводе")
}

func TestRouterServesDebugEndpoints(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	m.ObserveTick(time.Millisecond)

	router, err := NewRouter(ServerConfig{
		Metrics: m,
		State:   func() interface{} { return map[string]int{"tick": 7} },
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/state", nil))
	assert.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{"tick":7}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"), "Каждому запросу выдаётся trace-id")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/missing", nil))
	assert.Equal(t, 404, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "simulation_ticks_total 1")
	assert.Contains(t, body, `debug_api_http_request_errors_total{method="GET",path="unmatched",status="404"} 1`,
		"Ошибочные запросы считаются middleware")
}

func TestRouterWithoutStateProvider(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	router, err := NewRouter(ServerConfig{Metrics: m})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/state", nil))
	assert.Equal(t, 503, rec.Code)

	_, err = NewRouter(ServerConfig{Metrics: m})
	assert.Error(t, err, "Повторная регистрация HTTP-метрик в том же реестре")
}

func TestRuntimeStats(t *testing.T) {
	rs := NewRuntimeStats()
	assert.NotEmpty(t, rs.Uptime())
	assert.Greater(t, rs.MemoryMB(), 0.0)
	snap := rs.Snapshot()
	assert.Contains(t, snap, "goroutines")
}
