package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithRequestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	mw := WithRequestLogging(zap.New(core))

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/audit", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusTeapot)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["method"] != "GET" || fields["path"] != "/api/audit" {
		t.Errorf("logged %v; want method GET path /api/audit", fields)
	}
	if fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("logged status %v; want %d", fields["status"], http.StatusTeapot)
	}
}

func TestStatusWriter_DefaultsToOK(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	mw := WithRequestLogging(zap.New(core))

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Implicit 200 without WriteHeader.
		_, _ = w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if got := logs.All()[0].ContextMap()["status"]; got != int64(http.StatusOK) {
		t.Errorf("logged status %v; want 200", got)
	}
}
