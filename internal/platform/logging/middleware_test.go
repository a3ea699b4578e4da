package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAccessLoggerRecordsRouteAndSession(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(ContextWithLogger(r.Context(), zap.New(core))))
		})
	}, AccessLogger())
	router.Route("/v1", func(r chi.Router) {
		r.Post("/sessions/{id}/sign-in", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/abc123/sign-in", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["route"] != "/v1/sessions/{id}/sign-in" {
		t.Errorf("unexpected route %v", fields["route"])
	}
	if fields["sessionId"] != "abc123" {
		t.Errorf("unexpected sessionId %v", fields["sessionId"])
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Errorf("expected info level, got %v", entries[0].Level)
	}
}

func TestAccessLoggerLevels(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   zapcore.Level
	}{
		{"/health", http.StatusOK, zapcore.DebugLevel},
		{"/v1/sessions", http.StatusCreated, zapcore.InfoLevel},
		{"/v1/sessions/x", http.StatusNotFound, zapcore.WarnLevel},
		{"/health", http.StatusServiceUnavailable, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		core, recorded := observer.New(zapcore.DebugLevel)
		handler := AccessLogger()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}))
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		req = req.WithContext(ContextWithLogger(req.Context(), zap.New(core)))
		handler.ServeHTTP(httptest.NewRecorder(), req)

		entries := recorded.All()
		if len(entries) != 1 || entries[0].Level != tt.want {
			t.Errorf("%s %d: expected one %v entry, got %+v", tt.path, tt.status, tt.want, entries)
		}
	}
}

func TestAccessLoggerDefaultsStatusToOK(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	handler := AccessLogger()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/v1/profile", nil)
	req = req.WithContext(ContextWithLogger(req.Context(), zap.New(core)))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := recorded.All()
	if len(entries) != 1 || entries[0].ContextMap()["status"] != int64(http.StatusOK) {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
