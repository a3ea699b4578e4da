package profile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/janisto/chatmate/internal/platform/auth"
	applog "github.com/janisto/chatmate/internal/platform/logging"
	appmiddleware "github.com/janisto/chatmate/internal/platform/middleware"
	"github.com/janisto/chatmate/internal/platform/respond"
	profilesvc "github.com/janisto/chatmate/internal/service/profile"
	sessionsvc "github.com/janisto/chatmate/internal/service/session"
	"github.com/janisto/chatmate/internal/validate"
)

const testUID = "test-user-123"

type failingStore struct {
	profilesvc.Store
	err error
}

func (f *failingStore) Get(context.Context, string) (*profilesvc.Profile, error) {
	return nil, f.err
}

func (f *failingStore) UsernameTaken(context.Context, string) (bool, error) {
	return false, f.err
}

func newTestRouter(store profilesvc.Store, verifier auth.Verifier) chi.Router {
	router := chi.NewRouter()
	router.Use(
		appmiddleware.RequestID(),
		chimiddleware.RealIP,
		applog.RequestLogger(),
		respond.Recoverer(),
	)
	api := humachi.New(router, huma.DefaultConfig("ProfileTest", "test"))
	api.UseMiddleware(auth.NewMiddleware(api, verifier))
	Register(api, store)
	return router
}

func seededStore(t *testing.T) *profilesvc.MemoryStore {
	t.Helper()
	store := profilesvc.NewMemoryStore()
	link := "https://john.example.com"
	p := profilesvc.New(testUID, "john_doe", "john@example.com", nil, &link, "")
	p.AddedAt = 1705314600000
	if err := store.Put(context.Background(), testUID, p); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func get(router http.Handler, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	req.Header.Set(chimiddleware.RequestIDHeader, "profile-test")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestGetProfileSuccess(t *testing.T) {
	verifier := &auth.StaticVerifier{Caller: &auth.Caller{UID: testUID}}
	router := newTestRouter(seededStore(t), verifier)

	resp := get(router, "/profile", "Bearer valid-token")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var profile Profile
	if err := json.Unmarshal(resp.Body.Bytes(), &profile); err != nil {
		t.Fatalf("json unmarshal: %v", err)
	}
	if profile.ID != testUID {
		t.Errorf("expected id %s, got %s", testUID, profile.ID)
	}
	if profile.Username != "john_doe" {
		t.Errorf("expected username john_doe, got %s", profile.Username)
	}
	if profile.Bio != profilesvc.DefaultBio {
		t.Errorf("expected default bio, got %q", profile.Bio)
	}
	if profile.ImageURL != nil {
		t.Errorf("expected no image URL, got %q", *profile.ImageURL)
	}
	if profile.BioLink == nil || *profile.BioLink != "https://john.example.com" {
		t.Errorf("unexpected bio link %v", profile.BioLink)
	}
	if got := profile.AddedAt.UTC().Format("2006-01-02T15:04:05Z"); got != "2024-01-15T10:30:00Z" {
		t.Errorf("unexpected addedAt %s", got)
	}
}

func TestGetProfileNotFound(t *testing.T) {
	verifier := &auth.StaticVerifier{Caller: &auth.Caller{UID: "someone-else"}}
	router := newTestRouter(seededStore(t), verifier)

	resp := get(router, "/profile", "Bearer valid-token")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	var problem huma.ErrorModel
	if err := json.Unmarshal(resp.Body.Bytes(), &problem); err != nil {
		t.Fatalf("json unmarshal: %v", err)
	}
	if problem.Detail != "profile not found" {
		t.Errorf("unexpected detail %q", problem.Detail)
	}
}

func TestGetProfileUnauthorized(t *testing.T) {
	verifier := &auth.StaticVerifier{Caller: &auth.Caller{UID: testUID}}
	router := newTestRouter(seededStore(t), verifier)

	resp := get(router, "/profile", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if wwwAuth := resp.Header().Get("WWW-Authenticate"); wwwAuth != "Bearer" {
		t.Errorf("expected WWW-Authenticate: Bearer, got %s", wwwAuth)
	}
}

func TestGetProfileStoreFailure(t *testing.T) {
	verifier := &auth.StaticVerifier{Caller: &auth.Caller{UID: testUID}}
	router := newTestRouter(&failingStore{err: errors.New("firestore down")}, verifier)

	resp := get(router, "/profile", "Bearer valid-token")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}

func TestUsernameAvailability(t *testing.T) {
	router := newTestRouter(seededStore(t), &auth.StaticVerifier{Err: auth.ErrInvalidToken})

	tests := []struct {
		username  string
		available bool
		message   string
	}{
		{"john_doe", false, sessionsvc.MsgUsernameInUse},
		{"jane", true, ""},
		{"jo", false, validate.MsgUsernameLength},
		{"_jane", false, validate.MsgUsernameUnderscore},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			resp := get(router, "/usernames/"+tt.username+"/availability", "")
			if resp.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
			}
			var got Availability
			if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
				t.Fatalf("json unmarshal: %v", err)
			}
			if got.Available != tt.available || got.Message != tt.message {
				t.Errorf("got %+v, want available=%v message=%q", got, tt.available, tt.message)
			}
		})
	}
}

func TestUsernameAvailabilityStoreFailure(t *testing.T) {
	router := newTestRouter(&failingStore{err: errors.New("down")}, &auth.StaticVerifier{})

	resp := get(router, "/usernames/jane/availability", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var got Availability
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("json unmarshal: %v", err)
	}
	if got.Available || got.Message != sessionsvc.MsgSomethingWrong {
		t.Errorf("unexpected %+v", got)
	}
}
