// Package session coordinates one device session's credentials and profile.
//
// A Coordinator owns three observable values: the sign-in machine, the sign-up
// machine and the current profile. Intents drive the machines through
// Idle, Loading and a terminal state, talking to the identity provider, the
// profile store and the blob store in a fixed order.
package session

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	applog "github.com/janisto/chatmate/internal/platform/logging"
	"github.com/janisto/chatmate/internal/platform/observe"
	"github.com/janisto/chatmate/internal/service/blob"
	"github.com/janisto/chatmate/internal/service/identity"
	"github.com/janisto/chatmate/internal/service/profile"
	"github.com/janisto/chatmate/internal/validate"
)

// User-facing failure messages.
const (
	MsgUsernameInUse     = "Username is already in use."
	MsgEmailInUse        = "Email is already in use."
	MsgNoUser            = "No user exist with this email. Please Sign up to make a new account"
	MsgSomethingWrong    = "Oops, something went wrong"
	MsgUnreachable       = "Couldn't reach server check your internet connection"
	MsgUnknown           = "oops, an unknown error occurred"
	MsgNoLinkedAccount   = "No account found linked with this email. To add a new account please sign up"
	MsgAlreadyLinked     = "Account already linked with this email. Please login"
	MsgNoFederatedEmail  = "No email is linked with this email. Please try a different account"
	MsgFederatedUnknown  = "An unknown error occurred while signing in with google. Please try again later"
	msgMissingToken      = "Federated token is required."
	msgUnknownAction     = "Action must be signIn or signUp."
	auditResourceAccount = "principal"
)

// Action selects which machine a federated attempt drives.
type Action string

const (
	ActionSignIn Action = "signIn"
	ActionSignUp Action = "signUp"
)

// Image is an optional profile picture supplied at sign-up.
type Image struct {
	Data        []byte
	ContentType string
}

// SignUpRequest carries the email sign-up form.
type SignUpRequest struct {
	Email    string
	Password string
	Username string
	BioLink  *string
	Image    *Image
}

// Deps are the backends a Coordinator talks to.
type Deps struct {
	Identity identity.Service
	Profiles profile.Store
	Blobs    blob.Store
}

// Coordinator sequences credential intents for one session. Intents may run
// concurrently; the last write to each value wins.
type Coordinator struct {
	identity identity.Service
	profiles profile.Store
	blobs    blob.Store

	signIn  *observe.Value[SignInState]
	signUp  *observe.Value[SignUpState]
	current *observe.Value[*profile.Profile]
}

func New(deps Deps) *Coordinator {
	return &Coordinator{
		identity: deps.Identity,
		profiles: deps.Profiles,
		blobs:    deps.Blobs,
		signIn:   observe.New(SignInState{}),
		signUp:   observe.New(SignUpState{}),
		current:  observe.New[*profile.Profile](nil),
	}
}

func (c *Coordinator) SignInState() *observe.Value[SignInState] { return c.signIn }
func (c *Coordinator) SignUpState() *observe.Value[SignUpState] { return c.signUp }
func (c *Coordinator) CurrentProfile() *observe.Value[*profile.Profile] { return c.current }

// Snapshot reads the three values. Each read is atomic; the trio is not.
func (c *Coordinator) Snapshot() Snapshot {
	return Snapshot{SignIn: c.signIn.Get(), SignUp: c.signUp.Get(), Profile: c.current.Get().Clone()}
}

// Principal returns the signed-in principal, or nil.
func (c *Coordinator) Principal(ctx context.Context) (*identity.Principal, error) {
	return c.identity.CurrentPrincipal(ctx)
}

func (c *Coordinator) ResetSignIn() { c.signIn.Set(SignInState{}) }
func (c *Coordinator) ResetSignUp() { c.signUp.Set(SignUpState{}) }

// SignUpWithEmail creates a principal and its profile.
func (c *Coordinator) SignUpWithEmail(ctx context.Context, req SignUpRequest) (SignUpState, error) {
	if msg := validate.SignUpDetails(req.Email, req.Username, req.Password); msg != "" {
		return c.signUp.Get(), validationError(msg)
	}
	c.beginSignUp()

	taken, err := c.profiles.UsernameTaken(ctx, req.Username)
	if err != nil {
		return c.failSignUp(ctx, "sign_up", "", err, MsgSomethingWrong)
	}
	if taken {
		return c.failSignUp(ctx, "sign_up", "", nil, MsgUsernameInUse)
	}

	principal, err := c.identity.CreatePrincipal(ctx, req.Email, req.Password)
	if err != nil {
		return c.failSignUp(ctx, "sign_up", "", err, identityMessage(err))
	}
	if principal == nil {
		return c.failSignUp(ctx, "sign_up", "", nil, MsgUnknown)
	}

	var imageURL *string
	if req.Image != nil && len(req.Image.Data) > 0 {
		url, err := c.storeImage(ctx, principal.ID, req.Image)
		if err != nil {
			c.logOrphan(ctx, principal.ID, err)
			return c.failSignUp(ctx, "sign_up", principal.ID, err, MsgSomethingWrong)
		}
		imageURL = &url
	}

	p := profile.New(principal.ID, req.Username, req.Email, imageURL, req.BioLink, "")
	if err := c.profiles.Put(ctx, principal.ID, p); err != nil {
		c.logOrphan(ctx, principal.ID, err)
		return c.failSignUp(ctx, "sign_up", principal.ID, err, MsgSomethingWrong)
	}
	c.current.Set(p)
	return c.succeedSignUp(ctx, "sign_up", principal.ID), nil
}

// SignInWithEmail authenticates and loads the matching profile.
func (c *Coordinator) SignInWithEmail(ctx context.Context, email, password string) (SignInState, error) {
	if msg := validate.SignInDetails(email, password); msg != "" {
		return c.signIn.Get(), validationError(msg)
	}
	c.beginSignIn()

	principal, err := c.identity.Authenticate(ctx, email, password)
	if err != nil {
		return c.failSignIn(ctx, "sign_in", "", err, identityMessage(err))
	}
	if principal == nil {
		return c.failSignIn(ctx, "sign_in", "", nil, MsgNoUser)
	}

	p, err := c.profiles.Get(ctx, principal.ID)
	switch {
	case errors.Is(err, profile.ErrNotFound):
		applog.LogWarn(ctx, "signed in without a stored profile", zap.String("principalId", principal.ID))
		p = nil
	case err != nil:
		return c.failSignIn(ctx, "sign_in", principal.ID, err, MsgSomethingWrong)
	}
	c.current.Set(p)
	return c.succeedSignIn(ctx, "sign_in", principal.ID), nil
}

// SignInOrUpWithFederatedIdentity authenticates with a federated ID token.
// Sign-in requires an existing profile; sign-up requires there be none and
// creates it under username. The returned snapshot holds the machine driven.
func (c *Coordinator) SignInOrUpWithFederatedIdentity(ctx context.Context, token string, action Action, username string) (Snapshot, error) {
	switch {
	case action != ActionSignIn && action != ActionSignUp:
		return c.Snapshot(), validationError(msgUnknownAction)
	case strings.TrimSpace(token) == "":
		return c.Snapshot(), validationError(msgMissingToken)
	}
	if action == ActionSignUp {
		if msg := validate.Username(username); msg != "" {
			return c.Snapshot(), validationError(msg)
		}
		c.beginSignUp()
	} else {
		c.beginSignIn()
	}

	fail := func(principalID string, err error, msg string) (Snapshot, error) {
		var ferr error
		if action == ActionSignUp {
			_, ferr = c.failSignUp(ctx, "federated_sign_up", principalID, err, msg)
		} else {
			_, ferr = c.failSignIn(ctx, "federated_sign_in", principalID, err, msg)
		}
		return c.Snapshot(), ferr
	}

	principal, err := c.identity.AuthenticateWithFederatedToken(ctx, token)
	if err != nil {
		msg := identityMessage(err)
		if msg == MsgUnknown {
			msg = MsgFederatedUnknown
		}
		return fail("", err, msg)
	}
	if principal == nil {
		return fail("", nil, MsgFederatedUnknown)
	}

	existing, err := c.profiles.Get(ctx, principal.ID)
	if err != nil && !errors.Is(err, profile.ErrNotFound) {
		return fail(principal.ID, err, MsgSomethingWrong)
	}

	if action == ActionSignIn {
		if existing == nil {
			c.dropPrincipal(ctx)
			return fail(principal.ID, nil, MsgNoLinkedAccount)
		}
		c.current.Set(existing)
		c.succeedSignIn(ctx, "federated_sign_in", principal.ID)
		return c.Snapshot(), nil
	}

	switch {
	case existing != nil:
		c.dropPrincipal(ctx)
		return fail(principal.ID, nil, MsgAlreadyLinked)
	case principal.Email == "":
		c.dropPrincipal(ctx)
		return fail(principal.ID, nil, MsgNoFederatedEmail)
	}
	taken, err := c.profiles.UsernameTaken(ctx, username)
	if err != nil {
		return fail(principal.ID, err, MsgSomethingWrong)
	}
	if taken {
		c.dropPrincipal(ctx)
		return fail(principal.ID, nil, MsgUsernameInUse)
	}

	var imageURL *string
	if principal.PhotoURL != "" {
		imageURL = &principal.PhotoURL
	}
	p := profile.New(principal.ID, username, principal.Email, imageURL, nil, "")
	if err := c.profiles.Put(ctx, principal.ID, p); err != nil {
		c.logOrphan(ctx, principal.ID, err)
		return fail(principal.ID, err, MsgSomethingWrong)
	}
	c.current.Set(p)
	c.succeedSignUp(ctx, "federated_sign_up", principal.ID)
	return c.Snapshot(), nil
}

// CheckUsernameAvailable returns "" when name is free, otherwise the message to show.
func (c *Coordinator) CheckUsernameAvailable(ctx context.Context, name string) (string, error) {
	return CheckUsername(ctx, c.profiles, name)
}

// CheckUsername validates name and scans store for it. It needs no session.
func CheckUsername(ctx context.Context, store profile.Store, name string) (string, error) {
	if msg := validate.Username(name); msg != "" {
		return msg, nil
	}
	taken, err := store.UsernameTaken(ctx, name)
	if err != nil {
		if isCancellation(ctx, err) {
			return "", err
		}
		applog.LogError(ctx, "username availability check failed", err)
		return MsgSomethingWrong, nil
	}
	if taken {
		return MsgUsernameInUse, nil
	}
	return "", nil
}

// SignOut ends the identity session and clears local state. Local state is
// cleared even when the identity call fails; that error is still returned.
func (c *Coordinator) SignOut(ctx context.Context) error {
	principal, _ := c.identity.CurrentPrincipal(ctx)
	err := c.identity.SignOut(ctx)
	c.current.Set(nil)
	c.signIn.Set(SignInState{})
	c.signUp.Set(SignUpState{})

	ev := applog.AuditEvent{Action: "sign_out", ResourceType: auditResourceAccount, Result: applog.AuditSuccess}
	if principal != nil {
		ev.PrincipalID, ev.ResourceID = principal.ID, principal.ID
	}
	if err != nil {
		ev.Result = applog.AuditFailure
		ev.Details = map[string]any{"reason": reasonOf(err)}
	}
	applog.LogAuditEvent(ctx, ev)
	return err
}

// RequestPasswordReset asks the provider to email a reset link. Failures are
// logged and reported as false; only cancellation is returned as an error.
func (c *Coordinator) RequestPasswordReset(ctx context.Context, email string) (bool, error) {
	if msg := validate.Email(email); msg != "" {
		applog.LogInfo(ctx, "password reset rejected", zap.String("reason", msg))
		return false, nil
	}
	err := c.identity.SendPasswordReset(ctx, email)
	if err != nil {
		if isCancellation(ctx, err) {
			return false, err
		}
		applog.LogError(ctx, "password reset failed", err)
		applog.LogAuditEvent(ctx, applog.AuditEvent{
			Action: "password_reset", ResourceType: auditResourceAccount, Result: applog.AuditFailure,
			Details: map[string]any{"reason": reasonOf(err)},
		})
		return false, nil
	}
	applog.LogAuditEvent(ctx, applog.AuditEvent{
		Action: "password_reset", ResourceType: auditResourceAccount, Result: applog.AuditSuccess,
	})
	return true, nil
}

// LoadCurrentProfile publishes the profile of whoever the identity session
// already holds, or nil when signed out or no profile is stored.
func (c *Coordinator) LoadCurrentProfile(ctx context.Context) error {
	principal, err := c.identity.CurrentPrincipal(ctx)
	if err != nil {
		return err
	}
	if principal == nil {
		c.current.Set(nil)
		return nil
	}
	p, err := c.profiles.Get(ctx, principal.ID)
	if errors.Is(err, profile.ErrNotFound) {
		c.current.Set(nil)
		return nil
	}
	if err != nil {
		return err
	}
	c.current.Set(p)
	return nil
}

func (c *Coordinator) beginSignIn() {
	if c.signIn.Get() != (SignInState{}) {
		c.signIn.Set(SignInState{})
	}
	c.signIn.Set(SignInState{Loading: true})
}

func (c *Coordinator) beginSignUp() {
	if c.signUp.Get() != (SignUpState{}) {
		c.signUp.Set(SignUpState{})
	}
	c.signUp.Set(SignUpState{Loading: true})
}

func (c *Coordinator) failSignIn(ctx context.Context, action, principalID string, err error, msg string) (SignInState, error) {
	if err != nil && isCancellation(ctx, err) {
		return c.signIn.Get(), err
	}
	auditFailure(ctx, action, principalID, err, msg)
	s := signInFailed(msg)
	c.signIn.Set(s)
	return s, nil
}

func (c *Coordinator) failSignUp(ctx context.Context, action, principalID string, err error, msg string) (SignUpState, error) {
	if err != nil && isCancellation(ctx, err) {
		return c.signUp.Get(), err
	}
	auditFailure(ctx, action, principalID, err, msg)
	s := SignUpState{Error: msg}
	c.signUp.Set(s)
	return s, nil
}

func (c *Coordinator) succeedSignIn(ctx context.Context, action, principalID string) SignInState {
	auditSuccess(ctx, action, principalID)
	s := SignInState{Succeeded: true}
	c.signIn.Set(s)
	return s
}

func (c *Coordinator) succeedSignUp(ctx context.Context, action, principalID string) SignUpState {
	auditSuccess(ctx, action, principalID)
	s := SignUpState{Succeeded: true}
	c.signUp.Set(s)
	return s
}

func (c *Coordinator) storeImage(ctx context.Context, id string, img *Image) (string, error) {
	if err := c.blobs.Upload(ctx, id, img.Data, img.ContentType); err != nil {
		return "", err
	}
	return c.blobs.DownloadURL(ctx, id)
}

// dropPrincipal signs the identity session out after a federated attempt that
// authenticated but must not leave the session signed in.
func (c *Coordinator) dropPrincipal(ctx context.Context) {
	if err := c.identity.SignOut(ctx); err != nil {
		applog.LogWarn(ctx, "identity sign-out after rejected federated attempt failed", zap.Error(err))
	}
}

func (c *Coordinator) logOrphan(ctx context.Context, principalID string, err error) {
	if isCancellation(ctx, err) {
		return
	}
	applog.LogWarn(ctx, "principal created without a stored profile",
		zap.String("principalId", principalID), zap.Error(err))
}

// identityMessage maps an identity failure to the text shown to the user.
func identityMessage(err error) string {
	switch {
	case errors.Is(err, identity.ErrUnavailable):
		return MsgUnreachable
	case errors.Is(err, identity.ErrEmailExists):
		return MsgEmailInUse
	}
	if msg := identity.Message(err); msg != "" {
		return msg
	}
	return MsgUnknown
}

// isCancellation reports whether err is ctx's own cancellation.
func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func auditSuccess(ctx context.Context, action, principalID string) {
	applog.LogAuditEvent(ctx, applog.AuditEvent{
		Action:       action,
		PrincipalID:  principalID,
		ResourceType: auditResourceAccount,
		ResourceID:   principalID,
		Result:       applog.AuditSuccess,
	})
}

func auditFailure(ctx context.Context, action, principalID string, err error, msg string) {
	reason := "rejected"
	if err != nil {
		reason = reasonOf(err)
	} else if msg == MsgUsernameInUse {
		reason = "username_taken"
	}
	applog.LogAuditEvent(ctx, applog.AuditEvent{
		Action:       action,
		PrincipalID:  principalID,
		ResourceType: auditResourceAccount,
		ResourceID:   principalID,
		Result:       applog.AuditFailure,
		Details:      map[string]any{"reason": reason},
	})
}

// reasonOf converts errors to audit-safe categories.
func reasonOf(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, identity.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, identity.ErrEmailExists):
		return "email_exists"
	case errors.Is(err, identity.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, identity.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, profile.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		return "not_found"
	default:
		return "internal_error"
	}
}
