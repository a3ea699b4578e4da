package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	applog "github.com/janisto/chatmate/internal/platform/logging"
)

const (
	defaultIdentityURL = "https://identitytoolkit.googleapis.com/v1"
	defaultTokenURL    = "https://securetoken.googleapis.com/v1"

	// federatedRequestURI is required by signInWithIdp even when the token
	// was obtained outside a browser redirect.
	federatedRequestURI = "http://localhost"
	googleProviderID    = "google.com"

	// refreshSkew renews ID tokens slightly before they expire.
	refreshSkew = 30 * time.Second
)

// FirebaseConfig configures the Identity Toolkit REST client.
type FirebaseConfig struct {
	APIKey       string
	EmulatorHost string // FIREBASE_AUTH_EMULATOR_HOST; switches both base URLs
}

// FirebaseFactory holds the shared HTTP plumbing for FirebaseService sessions.
type FirebaseFactory struct {
	httpClient  *http.Client
	apiKey      string
	identityURL string
	tokenURL    string
	now         func() time.Time
}

// Option configures a FirebaseFactory.
type Option func(*FirebaseFactory)

// WithBaseURLs overrides the Identity Toolkit and Secure Token endpoints (useful for testing).
func WithBaseURLs(identityURL, tokenURL string) Option {
	return func(f *FirebaseFactory) {
		f.identityURL = strings.TrimRight(identityURL, "/")
		f.tokenURL = strings.TrimRight(tokenURL, "/")
	}
}

// WithHTTPClient sets the HTTP client used for every call.
func WithHTTPClient(c *http.Client) Option {
	return func(f *FirebaseFactory) {
		f.httpClient = c
	}
}

// WithClock replaces time.Now for token expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(f *FirebaseFactory) {
		f.now = now
	}
}

func NewFirebaseFactory(cfg FirebaseConfig, opts ...Option) *FirebaseFactory {
	f := &FirebaseFactory{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		apiKey:      cfg.APIKey,
		identityURL: defaultIdentityURL,
		tokenURL:    defaultTokenURL,
		now:         time.Now,
	}
	if cfg.EmulatorHost != "" {
		f.identityURL = "http://" + cfg.EmulatorHost + "/identitytoolkit.googleapis.com/v1"
		f.tokenURL = "http://" + cfg.EmulatorHost + "/securetoken.googleapis.com/v1"
		if f.apiKey == "" {
			f.apiKey = "emulator"
		}
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// New returns a signed-out session.
func (f *FirebaseFactory) New() Service {
	return &FirebaseService{f: f}
}

// Restore exchanges refreshToken for a fresh ID token and looks up the account.
func (f *FirebaseFactory) Restore(ctx context.Context, refreshToken string) (Service, error) {
	s := &FirebaseService{f: f}
	p, err := s.refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if err := s.lookup(ctx, p); err != nil {
		return nil, err
	}
	s.current = p
	return s, nil
}

// FirebaseService implements Service with the Firebase Identity Toolkit REST API.
type FirebaseService struct {
	f *FirebaseFactory

	mu      sync.Mutex
	current *Principal
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type idpRequest struct {
	PostBody            string `json:"postBody"`
	RequestURI          string `json:"requestUri"`
	ReturnIdpCredential bool   `json:"returnIdpCredential"`
	ReturnSecureToken   bool   `json:"returnSecureToken"`
}

type oobRequest struct {
	RequestType string `json:"requestType"`
	Email       string `json:"email"`
}

type lookupRequest struct {
	IDToken string `json:"idToken"`
}

type authResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	PhotoURL     string `json:"photoUrl"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type tokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type lookupResponse struct {
	Users []struct {
		LocalID  string `json:"localId"`
		Email    string `json:"email"`
		PhotoURL string `json:"photoUrl"`
		Disabled bool   `json:"disabled"`
	} `json:"users"`
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *FirebaseService) CreatePrincipal(ctx context.Context, email, password string) (*Principal, error) {
	var resp authResponse
	if err := s.f.postJSON(ctx, "accounts:signUp", passwordRequest{Email: email, Password: password, ReturnSecureToken: true}, &resp); err != nil {
		return nil, err
	}
	return s.setCurrent(s.f.principalFrom(resp)), nil
}

func (s *FirebaseService) Authenticate(ctx context.Context, email, password string) (*Principal, error) {
	var resp authResponse
	if err := s.f.postJSON(ctx, "accounts:signInWithPassword", passwordRequest{Email: email, Password: password, ReturnSecureToken: true}, &resp); err != nil {
		return nil, err
	}
	if resp.LocalID == "" {
		return nil, nil
	}
	return s.setCurrent(s.f.principalFrom(resp)), nil
}

// AuthenticateWithFederatedToken signs in with a Google ID token. The account is
// created on first use.
func (s *FirebaseService) AuthenticateWithFederatedToken(ctx context.Context, token string) (*Principal, error) {
	body := idpRequest{
		PostBody:            url.Values{"id_token": {token}, "providerId": {googleProviderID}}.Encode(),
		RequestURI:          federatedRequestURI,
		ReturnIdpCredential: true,
		ReturnSecureToken:   true,
	}
	var resp authResponse
	if err := s.f.postJSON(ctx, "accounts:signInWithIdp", body, &resp); err != nil {
		return nil, err
	}
	if resp.LocalID == "" {
		return nil, nil
	}
	return s.setCurrent(s.f.principalFrom(resp)), nil
}

func (s *FirebaseService) SendPasswordReset(ctx context.Context, email string) error {
	var resp struct {
		Email string `json:"email"`
	}
	return s.f.postJSON(ctx, "accounts:sendOobCode", oobRequest{RequestType: "PASSWORD_RESET", Email: email}, &resp)
}

// SignOut forgets the session's principal. Firebase client sign-out is local.
func (s *FirebaseService) SignOut(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	return nil
}

// CurrentPrincipal returns the signed-in principal, refreshing its ID token when expired.
func (s *FirebaseService) CurrentPrincipal(ctx context.Context) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, nil
	}
	if s.f.now().Add(refreshSkew).Before(s.current.ExpiresAt) {
		return s.current.clone(), nil
	}
	p, err := s.refresh(ctx, s.current.RefreshToken)
	if err != nil {
		return nil, err
	}
	p.Email = s.current.Email
	p.PhotoURL = s.current.PhotoURL
	s.current = p
	return p.clone(), nil
}

func (s *FirebaseService) setCurrent(p *Principal) *Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = p
	return p.clone()
}

func (s *FirebaseService) refresh(ctx context.Context, refreshToken string) (*Principal, error) {
	form := url.Values{"grant_type": {"refresh_token"}, "refresh_token": {refreshToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.f.tokenURL+"/token?key="+url.QueryEscape(s.f.apiKey), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp tokenResponse
	if err := s.f.do(ctx, req, "token", &resp); err != nil {
		return nil, err
	}
	return &Principal{
		ID:           resp.UserID,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    s.f.expiry(resp.IDToken, resp.ExpiresIn),
	}, nil
}

func (s *FirebaseService) lookup(ctx context.Context, p *Principal) error {
	var resp lookupResponse
	if err := s.f.postJSON(ctx, "accounts:lookup", lookupRequest{IDToken: p.IDToken}, &resp); err != nil {
		return err
	}
	if len(resp.Users) == 0 {
		return &Error{Kind: ErrUserNotFound, Code: "USER_NOT_FOUND", Message: msgUserNotFound}
	}
	u := resp.Users[0]
	if u.Disabled {
		return &Error{Kind: ErrUserDisabled, Code: "USER_DISABLED", Message: msgUserDisabled}
	}
	p.Email = u.Email
	p.PhotoURL = u.PhotoURL
	return nil
}

func (f *FirebaseFactory) principalFrom(resp authResponse) *Principal {
	return &Principal{
		ID:           resp.LocalID,
		Email:        resp.Email,
		PhotoURL:     resp.PhotoURL,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    f.expiry(resp.IDToken, resp.ExpiresIn),
	}
}

// expiry prefers the token's own exp claim and falls back to expiresIn seconds.
// The signature is not checked; the provider issued the token over TLS.
func (f *FirebaseFactory) expiry(idToken, expiresIn string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	secs, err := strconv.Atoi(expiresIn)
	if err != nil || secs <= 0 {
		secs = 3600
	}
	return f.now().Add(time.Duration(secs) * time.Second)
}

func (f *FirebaseFactory) postJSON(ctx context.Context, method string, body, target any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	u := f.identityURL + "/" + method + "?key=" + url.QueryEscape(f.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return f.do(ctx, req, method, target)
}

func (f *FirebaseFactory) do(ctx context.Context, req *http.Request, method string, target any) error {
	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		applog.LogWarn(ctx, "identity request failed", zap.String("method", method), zap.Error(err))
		return &Error{Kind: ErrUnavailable, Code: "NETWORK_REQUEST_FAILED", Message: msgNetwork, cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("decoding identity response: %w", err)
		}
		return nil
	}

	ierr := errorFromResponse(resp)
	applog.LogWarn(ctx, "identity request rejected",
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.String("code", ierr.Code),
		zap.String("reason", categorizeError(ierr)),
	)
	return ierr
}

func errorFromResponse(resp *http.Response) *Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body apiErrorBody
	_ = json.Unmarshal(raw, &body)

	code, detail, _ := strings.Cut(body.Error.Message, ":")
	code = strings.TrimSpace(code)
	detail = strings.TrimSpace(detail)

	if known, ok := providerErrors[code]; ok {
		msg := known.message
		if code == "WEAK_PASSWORD" && detail != "" {
			msg += " [ " + detail + " ]"
		}
		return &Error{Kind: known.kind, Code: code, Message: msg}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return &Error{Kind: ErrUnavailable, Code: code, Message: msgInternal}
	}
	return &Error{Kind: ErrRejected, Code: code, Message: body.Error.Message}
}

const (
	msgNetwork      = "A network error (such as timeout, interrupted connection or unreachable host) has occurred."
	msgInternal     = "An internal error has occurred."
	msgUserNotFound = "There is no user record corresponding to this identifier. The user may have been deleted."
	msgUserDisabled = "The user account has been disabled by an administrator."
	msgTokenInvalid = "The user's credential is no longer valid. The user must sign in again."
)

// providerErrors maps Identity Toolkit codes to the messages mobile SDKs show.
var providerErrors = map[string]struct {
	kind    error
	message string
}{
	"EMAIL_EXISTS":                {ErrEmailExists, "The email address is already in use by another account."},
	"EMAIL_NOT_FOUND":             {ErrUserNotFound, msgUserNotFound},
	"USER_NOT_FOUND":              {ErrUserNotFound, msgUserNotFound},
	"INVALID_PASSWORD":            {ErrInvalidCredentials, "The password is invalid or the user does not have a password."},
	"INVALID_LOGIN_CREDENTIALS":   {ErrInvalidCredentials, "The supplied auth credential is incorrect, malformed or has expired."},
	"INVALID_EMAIL":               {ErrInvalidCredentials, "The email address is badly formatted."},
	"MISSING_PASSWORD":            {ErrInvalidCredentials, "The given password is invalid."},
	"WEAK_PASSWORD":               {ErrWeakPassword, "The given password is invalid."},
	"USER_DISABLED":               {ErrUserDisabled, msgUserDisabled},
	"TOO_MANY_ATTEMPTS_TRY_LATER": {ErrTooManyAttempts, "We have blocked all requests from this device due to unusual activity. Try again later."},
	"INVALID_ID_TOKEN":            {ErrInvalidToken, "This user's credential isn't valid for this project anymore."},
	"TOKEN_EXPIRED":               {ErrInvalidToken, msgTokenInvalid},
	"INVALID_REFRESH_TOKEN":       {ErrInvalidToken, msgTokenInvalid},
	"INVALID_IDP_RESPONSE":        {ErrInvalidToken, "The supplied auth credential is malformed or has expired."},
}

var (
	_ Service = (*FirebaseService)(nil)
	_ Factory = (*FirebaseFactory)(nil)
)
