package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const memoryTokenTTL = time.Hour

type memoryAccount struct {
	id       string
	email    string
	password string
	photoURL string
	disabled bool
}

// FederatedAccount is what a registered federated token resolves to.
type FederatedAccount struct {
	Email    string
	PhotoURL string
}

// Directory is an in-process identity provider shared by MemoryService sessions.
// Emails are matched case-insensitively, as the hosted provider does.
type Directory struct {
	mu        sync.RWMutex
	byEmail   map[string]*memoryAccount
	byID      map[string]*memoryAccount
	federated map[string]FederatedAccount
	idTokens  map[string]string // ID token -> account ID
	refresh   map[string]string // refresh token -> account ID
	resets    []string

	// Fail, when set, is consulted before every call; a non-nil result is returned as-is.
	Fail func(op string) error
}

func NewDirectory() *Directory {
	return &Directory{
		byEmail:   make(map[string]*memoryAccount),
		byID:      make(map[string]*memoryAccount),
		federated: make(map[string]FederatedAccount),
		idTokens:  make(map[string]string),
		refresh:   make(map[string]string),
	}
}

// AddAccount registers an email/password account and returns its ID.
func (d *Directory) AddAccount(email, password string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addLocked(email, password, "").id
}

// RegisterFederatedToken makes token resolve to account on federated sign-in.
func (d *Directory) RegisterFederatedToken(token string, account FederatedAccount) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.federated[token] = account
}

// Disable marks the account with email as disabled.
func (d *Directory) Disable(email string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if acct, ok := d.byEmail[normalizeEmail(email)]; ok {
		acct.disabled = true
	}
}

// PasswordResets lists the emails a reset was sent to, in order.
func (d *Directory) PasswordResets() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.resets...)
}

// Lookup resolves an ID token issued by this directory.
func (d *Directory) Lookup(idToken string) (*Principal, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.idTokens[idToken]
	if !ok {
		return nil, false
	}
	acct := d.byID[id]
	if acct == nil || acct.disabled {
		return nil, false
	}
	return &Principal{ID: acct.id, Email: acct.email, PhotoURL: acct.photoURL, IDToken: idToken}, true
}

// New returns a signed-out session.
func (d *Directory) New() Service {
	return &MemoryService{dir: d}
}

// Restore resumes the session that was issued refreshToken.
func (d *Directory) Restore(ctx context.Context, refreshToken string) (Service, error) {
	if err := d.check(ctx, "restore"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.refresh[refreshToken]
	if !ok {
		return nil, &Error{Kind: ErrInvalidToken, Code: "INVALID_REFRESH_TOKEN", Message: msgTokenInvalid}
	}
	acct := d.byID[id]
	if acct.disabled {
		return nil, &Error{Kind: ErrUserDisabled, Code: "USER_DISABLED", Message: msgUserDisabled}
	}
	return &MemoryService{dir: d, current: d.issueLocked(acct)}, nil
}

func (d *Directory) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.Fail != nil {
		return d.Fail(op)
	}
	return nil
}

func (d *Directory) addLocked(email, password, photoURL string) *memoryAccount {
	acct := &memoryAccount{id: uuid.NewString(), email: email, password: password, photoURL: photoURL}
	d.byEmail[normalizeEmail(email)] = acct
	d.byID[acct.id] = acct
	return acct
}

func (d *Directory) issueLocked(acct *memoryAccount) *Principal {
	p := &Principal{
		ID:           acct.id,
		Email:        acct.email,
		PhotoURL:     acct.photoURL,
		IDToken:      "mem-id-" + uuid.NewString(),
		RefreshToken: "mem-rt-" + uuid.NewString(),
		ExpiresAt:    time.Now().Add(memoryTokenTTL),
	}
	d.idTokens[p.IDToken] = acct.id
	d.refresh[p.RefreshToken] = acct.id
	return p
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryService is one session against a Directory.
type MemoryService struct {
	dir *Directory

	mu      sync.Mutex
	current *Principal
}

func (s *MemoryService) CreatePrincipal(ctx context.Context, email, password string) (*Principal, error) {
	if err := s.dir.check(ctx, "create"); err != nil {
		return nil, err
	}
	if len(password) < 6 {
		return nil, &Error{Kind: ErrWeakPassword, Code: "WEAK_PASSWORD",
			Message: "The given password is invalid. [ Password should be at least 6 characters ]"}
	}
	s.dir.mu.Lock()
	if _, exists := s.dir.byEmail[normalizeEmail(email)]; exists {
		s.dir.mu.Unlock()
		return nil, &Error{Kind: ErrEmailExists, Code: "EMAIL_EXISTS",
			Message: providerErrors["EMAIL_EXISTS"].message}
	}
	p := s.dir.issueLocked(s.dir.addLocked(email, password, ""))
	s.dir.mu.Unlock()
	return s.setCurrent(p), nil
}

func (s *MemoryService) Authenticate(ctx context.Context, email, password string) (*Principal, error) {
	if err := s.dir.check(ctx, "authenticate"); err != nil {
		return nil, err
	}
	s.dir.mu.Lock()
	acct, ok := s.dir.byEmail[normalizeEmail(email)]
	switch {
	case !ok || acct.password != password:
		s.dir.mu.Unlock()
		return nil, &Error{Kind: ErrInvalidCredentials, Code: "INVALID_LOGIN_CREDENTIALS",
			Message: providerErrors["INVALID_LOGIN_CREDENTIALS"].message}
	case acct.disabled:
		s.dir.mu.Unlock()
		return nil, &Error{Kind: ErrUserDisabled, Code: "USER_DISABLED", Message: msgUserDisabled}
	}
	p := s.dir.issueLocked(acct)
	s.dir.mu.Unlock()
	return s.setCurrent(p), nil
}

// AuthenticateWithFederatedToken resolves a registered token, creating the
// account on first use. Unknown tokens are rejected.
func (s *MemoryService) AuthenticateWithFederatedToken(ctx context.Context, token string) (*Principal, error) {
	if err := s.dir.check(ctx, "federated"); err != nil {
		return nil, err
	}
	s.dir.mu.Lock()
	fed, ok := s.dir.federated[token]
	if !ok {
		s.dir.mu.Unlock()
		return nil, &Error{Kind: ErrInvalidToken, Code: "INVALID_IDP_RESPONSE",
			Message: providerErrors["INVALID_IDP_RESPONSE"].message}
	}
	acct, exists := s.dir.byEmail[normalizeEmail(fed.Email)]
	if !exists || fed.Email == "" {
		acct = s.dir.addLocked(fed.Email, "", fed.PhotoURL)
	}
	if acct.disabled {
		s.dir.mu.Unlock()
		return nil, &Error{Kind: ErrUserDisabled, Code: "USER_DISABLED", Message: msgUserDisabled}
	}
	p := s.dir.issueLocked(acct)
	s.dir.mu.Unlock()
	return s.setCurrent(p), nil
}

// SendPasswordReset records the request. Unknown emails are rejected.
func (s *MemoryService) SendPasswordReset(ctx context.Context, email string) error {
	if err := s.dir.check(ctx, "password_reset"); err != nil {
		return err
	}
	s.dir.mu.Lock()
	defer s.dir.mu.Unlock()
	if _, ok := s.dir.byEmail[normalizeEmail(email)]; !ok {
		return &Error{Kind: ErrUserNotFound, Code: "EMAIL_NOT_FOUND", Message: msgUserNotFound}
	}
	s.dir.resets = append(s.dir.resets, email)
	return nil
}

func (s *MemoryService) SignOut(ctx context.Context) error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	return s.dir.check(ctx, "sign_out")
}

func (s *MemoryService) CurrentPrincipal(ctx context.Context) (*Principal, error) {
	if err := s.dir.check(ctx, "current"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.clone(), nil
}

func (s *MemoryService) setCurrent(p *Principal) *Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = p
	return p.clone()
}

var (
	_ Service = (*MemoryService)(nil)
	_ Factory = (*Directory)(nil)
)
