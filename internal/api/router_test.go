package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/content-scheduler/internal/api"
	"github.com/jonesrussell/content-scheduler/internal/config"
	"github.com/jonesrussell/content-scheduler/internal/database"
	"github.com/jonesrussell/content-scheduler/internal/logger"
)

func setupRouter(t *testing.T, ping func(ctx context.Context) error) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := &config.Config{}
	router := api.NewRouter(
		database.NewScheduleRepository(db, 3),
		client,
		prometheus.NewRegistry(),
		cfg,
		ping,
		logger.NewNopLogger(),
	)
	return router.NewServer().Handler, mock
}

func TestGetHealth(t *testing.T) {
	handler, _ := setupRouter(t, func(context.Context) error { return nil })

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestGetHealthDegraded(t *testing.T) {
	handler, _ := setupRouter(t, func(context.Context) error {
		return errors.New("connection refused")
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
}

func TestGetStats(t *testing.T) {
	handler, mock := setupRouter(t, func(context.Context) error { return nil })

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows(
			[]string{"pending", "dispatching", "dispatched", "failed", "recurring"}).
			AddRow(7, 0, 12, 1, 3))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]int64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(7), body["pending"])
	assert.Equal(t, int64(12), body["dispatched"])
}

func TestGetStatsError(t *testing.T) {
	handler, mock := setupRouter(t, func(context.Context) error { return nil })

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("database gone"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	handler, _ := setupRouter(t, func(context.Context) error { return nil })

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
