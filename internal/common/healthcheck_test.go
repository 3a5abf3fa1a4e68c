package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/khanghh/kguard/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthCheckHandler(t *testing.T) {
	db := testutil.OpenDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	handler := NewHealthCheckHandler(db, rdb)
	require.Equal(t, http.StatusOK, get(t, handler, "/livez").Code)
	require.Equal(t, http.StatusOK, get(t, handler, "/readyz").Code)

	metrics := get(t, handler, "/metrics")
	require.Equal(t, http.StatusOK, metrics.Code)
	require.Contains(t, metrics.Body.String(), "go_goroutines")

	mr.Close()
	require.Equal(t, http.StatusServiceUnavailable, get(t, handler, "/readyz").Code)
}

func TestHealthCheckWithoutRedis(t *testing.T) {
	db := testutil.OpenDB(t)
	handler := NewHealthCheckHandler(db, nil)
	require.Equal(t, http.StatusOK, get(t, handler, "/readyz").Code)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	require.Equal(t, http.StatusServiceUnavailable, get(t, handler, "/readyz").Code)
}
