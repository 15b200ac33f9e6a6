package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"universe-server/internal/shared/database"
	"universe-server/internal/shared/redis"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func serveHealth(t *testing.T, h *HealthHandler) HealthResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/server/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHealthWithoutBackends(t *testing.T) {
	resp := serveHealth(t, NewHealthHandler(nil, nil, func() int { return 3 }))

	if resp.Status != "healthy" || resp.Database != statusNotConfigured || resp.Redis != statusNotConfigured {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Simulations != 3 {
		t.Errorf("simulations = %d, want 3", resp.Simulations)
	}
}

func TestHealthWithBackends(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatal(err)
	}
	defer sqlDB.Close()
	mock.ExpectPing()

	mr := miniredis.RunT(t)
	client := &redis.Client{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
	defer client.Close()

	resp := serveHealth(t, NewHealthHandler(&database.DB{DB: sqlDB}, client, nil))
	if resp.Status != "healthy" || resp.Database != statusConnected || resp.Redis != statusConnected {
		t.Errorf("resp = %+v", resp)
	}

	mr.Close()
	mock.ExpectPing().WillReturnError(sqlmock.ErrCancelled)
	resp = serveHealth(t, NewHealthHandler(&database.DB{DB: sqlDB}, client, nil))
	if resp.Status != "degraded" || resp.Database != statusDisconnected || resp.Redis != statusDisconnected {
		t.Errorf("resp = %+v", resp)
	}
}
