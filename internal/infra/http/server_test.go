package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func healthStatus(t *testing.T, db Pinger) int {
	t.Helper()
	mux := New(":0", false, db).srv.Handler
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	return rec.Code
}

func TestHealthReflectsDB(t *testing.T) {
	if got := healthStatus(t, fakePinger{}); got != http.StatusOK {
		t.Fatalf("healthy db: status = %d, want 200", got)
	}
	if got := healthStatus(t, fakePinger{err: errors.New("down")}); got != http.StatusServiceUnavailable {
		t.Fatalf("dead db: status = %d, want 503", got)
	}
	// No pinger configured (tests, maintenance mode) still reports up.
	if got := healthStatus(t, nil); got != http.StatusOK {
		t.Fatalf("nil pinger: status = %d, want 200", got)
	}
}
