package metrics

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	m := New(nil)

	m.ObserveRequest(http.MethodGet, "/todos/:id", http.StatusOK, 10*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/todos/:id", http.StatusOK, 20*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/todos/:id", http.StatusNotFound, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/todos/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/todos/:id", "404")))
}

func TestHandler_ExposesDBStats(t *testing.T) {
	m := New(func() sql.DBStats {
		return sql.DBStats{OpenConnections: 3, InUse: 1, Idle: 2, WaitCount: 7}
	})
	m.ObserveRequest(http.MethodPost, "/users", http.StatusCreated, time.Millisecond)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	for _, want := range []string{
		"todo_db_open_connections 3",
		"todo_db_in_use_connections 1",
		"todo_db_idle_connections 2",
		"todo_db_wait_count_total 7",
		`todo_http_requests_total{method="POST",route="/users",status="201"} 1`,
	} {
		assert.True(t, strings.Contains(body, want), "metrics output missing %q", want)
	}
}
