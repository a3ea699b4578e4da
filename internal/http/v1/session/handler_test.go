package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	applog "github.com/janisto/chatmate/internal/platform/logging"
	appmiddleware "github.com/janisto/chatmate/internal/platform/middleware"
	"github.com/janisto/chatmate/internal/platform/respond"
	"github.com/janisto/chatmate/internal/service/blob"
	"github.com/janisto/chatmate/internal/service/identity"
	"github.com/janisto/chatmate/internal/service/profile"
	sessionsvc "github.com/janisto/chatmate/internal/service/session"
	"github.com/janisto/chatmate/internal/validate"
)

type testEnv struct {
	router   chi.Router
	registry *sessionsvc.Registry
	dir      *identity.Directory
	profiles *profile.MemoryStore
}

type fakeExchanger struct{}

func (fakeExchanger) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (fakeExchanger) Exchange(_ context.Context, code string) (string, error) {
	if code == "good-code" {
		return "google-token", nil
	}
	return "", &identity.Error{Kind: identity.ErrInvalidToken}
}

func newTestEnv(t *testing.T, exchanger CodeExchanger) *testEnv {
	t.Helper()
	env := &testEnv{dir: identity.NewDirectory(), profiles: profile.NewMemoryStore()}
	env.registry = sessionsvc.NewRegistry(sessionsvc.RegistryConfig{
		Identity: env.dir,
		Profiles: env.profiles,
		Blobs:    blob.NewMemoryStore(),
	})
	router := chi.NewRouter()
	router.Use(
		appmiddleware.RequestID(),
		chimiddleware.RealIP,
		applog.RequestLogger(),
		respond.Recoverer(),
	)
	api := humachi.New(router, huma.DefaultConfig("SessionTest", "test"))
	Register(api, env.registry, exchanger, "/v1")
	env.router = router
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(chimiddleware.RequestIDHeader, "session-test")
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func (e *testEnv) open(t *testing.T) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/sessions", "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	return decodeSession(t, resp).ID
}

func decodeSession(t *testing.T, resp *httptest.ResponseRecorder) Session {
	t.Helper()
	var s Session
	if err := json.Unmarshal(resp.Body.Bytes(), &s); err != nil {
		t.Fatalf("json unmarshal: %v: %s", err, resp.Body.String())
	}
	return s
}

func decodeProblem(t *testing.T, resp *httptest.ResponseRecorder) huma.ErrorModel {
	t.Helper()
	var problem huma.ErrorModel
	if err := json.Unmarshal(resp.Body.Bytes(), &problem); err != nil {
		t.Fatalf("json unmarshal: %v", err)
	}
	return problem
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/sessions", "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	s := decodeSession(t, resp)
	if loc := resp.Header().Get("Location"); loc != "/v1/sessions/"+s.ID {
		t.Errorf("unexpected Location %q", loc)
	}
	if s.SignIn.Status != "idle" || s.SignUp.Status != "idle" {
		t.Errorf("expected idle machines, got %+v %+v", s.SignIn, s.SignUp)
	}
	if s.Profile != nil || s.Credentials != nil {
		t.Errorf("expected signed-out session, got %+v", s)
	}
}

func TestCreateSessionWithInvalidRefreshToken(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/sessions", `{"refreshToken":"bogus"}`)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestSignUpThenResume(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.open(t)

	body := `{"email":"alice@example.com","password":"password123","username":"alice_w","bioLink":"https://a.example.com"}`
	resp := env.do(t, http.MethodPost, "/sessions/"+id+"/sign-up", body)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	s := decodeSession(t, resp)
	if s.SignUp.Status != "succeeded" {
		t.Fatalf("expected succeeded, got %+v", s.SignUp)
	}
	if s.Profile == nil || s.Profile.Username != "alice_w" {
		t.Fatalf("expected profile alice_w, got %+v", s.Profile)
	}
	if s.Credentials == nil || s.Credentials.RefreshToken == "" {
		t.Fatalf("expected credentials, got %+v", s.Credentials)
	}

	resp = env.do(t, http.MethodPost, "/sessions", `{"refreshToken":"`+s.Credentials.RefreshToken+`"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	resumed := decodeSession(t, resp)
	if resumed.ID == id {
		t.Error("expected a new session ID")
	}
	if resumed.Profile == nil || resumed.Profile.ID != s.Profile.ID {
		t.Errorf("expected restored profile, got %+v", resumed.Profile)
	}
}

func TestSignUpValidationReturns422(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.open(t)

	resp := env.do(t, http.MethodPost, "/sessions/"+id+"/sign-up",
		`{"email":"","password":"password123","username":"alice_w"}`)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", resp.Code, resp.Body.String())
	}
	if problem := decodeProblem(t, resp); problem.Detail != validate.MsgEmailEmpty {
		t.Errorf("unexpected detail %q", problem.Detail)
	}

	resp = env.do(t, http.MethodGet, "/sessions/"+id, "")
	if s := decodeSession(t, resp); s.SignUp.Status != "idle" {
		t.Errorf("validation must not touch the machine, got %+v", s.SignUp)
	}
}

func TestSignInFailurePublishesMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.open(t)

	resp := env.do(t, http.MethodPost, "/sessions/"+id+"/sign-in",
		`{"email":"nobody@example.com","password":"password123"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	s := decodeSession(t, resp)
	if s.SignIn.Status != "failed" || s.SignIn.Error == nil || *s.SignIn.Error == "" {
		t.Fatalf("expected failed sign-in with message, got %+v", s.SignIn)
	}

	resp = env.do(t, http.MethodPost, "/sessions/"+id+"/reset", `{"machine":"signIn"}`)
	if s := decodeSession(t, resp); s.SignIn.Status != "idle" || s.SignIn.Error != nil {
		t.Errorf("expected idle after reset, got %+v", s.SignIn)
	}
}

func TestResetWithoutBodyResetsBothMachines(t *testing.T) {
	env := newTestEnv(t, nil)
	env.dir.AddAccount("taken@example.com", "password123")
	id := env.open(t)

	resp := env.do(t, http.MethodPost, "/sessions/"+id+"/sign-in",
		`{"email":"nobody@example.com","password":"password123"}`)
	if s := decodeSession(t, resp); s.SignIn.Status != "failed" {
		t.Fatalf("expected failed sign-in, got %+v", s.SignIn)
	}
	resp = env.do(t, http.MethodPost, "/sessions/"+id+"/sign-up",
		`{"email":"taken@example.com","password":"password123","username":"dora"}`)
	if s := decodeSession(t, resp); s.SignUp.Status != "failed" {
		t.Fatalf("expected failed sign-up, got %+v", s.SignUp)
	}

	resp = env.do(t, http.MethodPost, "/sessions/"+id+"/reset", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	s := decodeSession(t, resp)
	if s.SignIn.Status != "idle" || s.SignUp.Status != "idle" {
		t.Errorf("expected both machines idle, got %+v %+v", s.SignIn, s.SignUp)
	}
}

func TestSignInSucceedsWhenCredentialRefreshFails(t *testing.T) {
	env := newTestEnv(t, nil)
	env.dir.AddAccount("bob@example.com", "password123")
	env.dir.Fail = func(op string) error {
		if op == "current" {
			return &identity.Error{Kind: identity.ErrUnavailable}
		}
		return nil
	}
	id := env.open(t)

	resp := env.do(t, http.MethodPost, "/sessions/"+id+"/sign-in",
		`{"email":"bob@example.com","password":"password123"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	s := decodeSession(t, resp)
	if s.SignIn.Status != "succeeded" {
		t.Fatalf("expected succeeded sign-in, got %+v", s.SignIn)
	}
	if s.Credentials != nil {
		t.Errorf("expected no credentials when the refresh fails, got %+v", s.Credentials)
	}
}

func TestSignInAndSignOut(t *testing.T) {
	env := newTestEnv(t, nil)
	uid := env.dir.AddAccount("bob@example.com", "password123")
	if err := env.profiles.Put(context.Background(), uid, profile.New(uid, "bob", "bob@example.com", nil, nil, "")); err != nil {
		t.Fatal(err)
	}
	id := env.open(t)

	resp := env.do(t, http.MethodPost, "/sessions/"+id+"/sign-in", `{"email":"bob@example.com","password":"password123"}`)
	s := decodeSession(t, resp)
	if s.SignIn.Status != "succeeded" || s.Profile == nil || s.Profile.Username != "bob" {
		t.Fatalf("unexpected sign-in result %+v", s)
	}

	resp = env.do(t, http.MethodPost, "/sessions/"+id+"/sign-out", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	s = decodeSession(t, resp)
	if s.SignIn.Status != "idle" || s.Profile != nil || s.Credentials != nil {
		t.Errorf("expected cleared session, got %+v", s)
	}
}

func (e *testEnv) authorize(t *testing.T, id string) Authorization {
	t.Helper()
	resp := e.do(t, http.MethodGet, "/sessions/"+id+"/federated/authorize", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var a Authorization
	if err := json.Unmarshal(resp.Body.Bytes(), &a); err != nil {
		t.Fatalf("json unmarshal: %v", err)
	}
	return a
}

func TestFederatedWithCode(t *testing.T) {
	env := newTestEnv(t, fakeExchanger{})
	env.dir.RegisterFederatedToken("google-token", identity.FederatedAccount{Email: "g@example.com", PhotoURL: "https://photo"})
	id := env.open(t)

	auth := env.authorize(t, id)
	if auth.State == "" || !strings.HasSuffix(auth.URL, "state="+auth.State) {
		t.Fatalf("unexpected authorization %+v", auth)
	}

	resp := env.do(t, http.MethodPost, "/sessions/"+id+"/federated",
		`{"code":"good-code","state":"`+auth.State+`","action":"signUp","username":"gina"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	s := decodeSession(t, resp)
	if s.SignUp.Status != "succeeded" || s.Profile == nil || s.Profile.ImageURL == nil {
		t.Fatalf("unexpected federated sign-up %+v", s)
	}

	auth = env.authorize(t, id)
	resp = env.do(t, http.MethodPost, "/sessions/"+id+"/federated",
		`{"code":"bad","state":"`+auth.State+`","action":"signIn"}`)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a rejected code, got %d", resp.Code)
	}
}

func TestFederatedCodeRequiresIssuedState(t *testing.T) {
	env := newTestEnv(t, fakeExchanger{})
	env.dir.RegisterFederatedToken("google-token", identity.FederatedAccount{Email: "g@example.com"})
	id := env.open(t)
	other := env.open(t)

	otherState := env.authorize(t, other).State

	tests := []struct {
		name  string
		state string
	}{
		{"missing", ""},
		{"wrong", "not-the-state"},
		{"another session's", otherState},
	}
	for _, tt := range tests {
		env.authorize(t, id)
		resp := env.do(t, http.MethodPost, "/sessions/"+id+"/federated",
			`{"code":"good-code","state":"`+tt.state+`","action":"signIn"}`)
		if resp.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s state: expected 422, got %d", tt.name, resp.Code)
		}
	}

	// Any attempt consumes the pending state.
	state := env.authorize(t, id).State
	env.do(t, http.MethodPost, "/sessions/"+id+"/federated", `{"code":"good-code","state":"x","action":"signIn"}`)
	resp := env.do(t, http.MethodPost, "/sessions/"+id+"/federated",
		`{"code":"good-code","state":"`+state+`","action":"signIn"}`)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for a consumed state, got %d", resp.Code)
	}
}

func TestFederatedAuthorizeWithoutExchanger(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.open(t)

	resp := env.do(t, http.MethodGet, "/sessions/"+id+"/federated/authorize", "")
	if resp.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.Code)
	}
	resp = env.do(t, http.MethodGet, "/sessions/missing/federated/authorize", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestFederatedCodeWithoutExchanger(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.open(t)

	resp := env.do(t, http.MethodPost, "/sessions/"+id+"/federated", `{"code":"good-code","action":"signIn"}`)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
}

func TestFederatedRejectsUnknownAction(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.open(t)

	resp := env.do(t, http.MethodPost, "/sessions/"+id+"/federated", `{"idToken":"x","action":"other"}`)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
}

func TestPasswordReset(t *testing.T) {
	env := newTestEnv(t, nil)
	env.dir.AddAccount("bob@example.com", "password123")
	id := env.open(t)

	tests := []struct {
		email string
		sent  bool
	}{
		{"bob@example.com", true},
		{"nobody@example.com", false},
	}
	for _, tt := range tests {
		resp := env.do(t, http.MethodPost, "/sessions/"+id+"/password-reset", `{"email":"`+tt.email+`"}`)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Code)
		}
		var got PasswordReset
		if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
			t.Fatalf("json unmarshal: %v", err)
		}
		if got.Sent != tt.sent {
			t.Errorf("%s: expected sent=%v", tt.email, tt.sent)
		}
	}
}

func TestUnknownSessionReturns404(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/sessions/missing", "/sessions/missing/sign-out"} {
		method := http.MethodGet
		if strings.HasSuffix(path, "sign-out") {
			method = http.MethodPost
		}
		resp := env.do(t, method, path, "")
		if resp.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, resp.Code)
		}
	}
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.open(t)

	resp := env.do(t, http.MethodDelete, "/sessions/"+id, "")
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if env.registry.Len() != 0 {
		t.Errorf("expected no sessions, got %d", env.registry.Len())
	}
	resp = env.do(t, http.MethodDelete, "/sessions/"+id, "")
	if resp.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", resp.Code)
	}
}

func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if data != "" {
				return event, data
			}
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventsStreamSnapshots(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	id, coord, err := env.registry.Open(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/"+id+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	event, data := readEvent(t, r)
	if event != "session" {
		t.Fatalf("expected session event, got %q", event)
	}
	var first Session
	if err := json.Unmarshal([]byte(data), &first); err != nil {
		t.Fatal(err)
	}
	if first.SignIn.Status != "idle" {
		t.Fatalf("expected idle, got %+v", first.SignIn)
	}

	if _, err := coord.SignInWithEmail(context.Background(), "nobody@example.com", "password123"); err != nil {
		t.Fatal(err)
	}
	var last Session
	for last.SignIn.Status != "failed" {
		_, data = readEvent(t, r)
		if err := json.Unmarshal([]byte(data), &last); err != nil {
			t.Fatal(err)
		}
	}
	if last.Credentials != nil {
		t.Error("event stream must not carry credentials")
	}
}

func TestEventsUnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/sessions/missing/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	event, data := readEvent(t, bufio.NewReader(resp.Body))
	if event != "error" || !strings.Contains(data, "session not found") {
		t.Fatalf("unexpected event %q %s", event, data)
	}
}

func TestMapErrorCategories(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&sessionsvc.Error{Kind: sessionsvc.KindValidation, Message: "bad"}, http.StatusUnprocessableEntity},
		{sessionsvc.ErrSessionNotFound, http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{&identity.Error{Kind: identity.ErrUnavailable}, http.StatusServiceUnavailable},
		{&identity.Error{Kind: identity.ErrInvalidToken}, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		var se huma.StatusError
		if !errors.As(mapError(context.Background(), tt.err), &se) {
			t.Fatalf("%v: expected a status error", tt.err)
		}
		if se.GetStatus() != tt.status {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.status, se.GetStatus())
		}
	}
}
