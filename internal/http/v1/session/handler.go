package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"go.uber.org/zap"

	profilehttp "github.com/janisto/chatmate/internal/http/v1/profile"
	applog "github.com/janisto/chatmate/internal/platform/logging"
	"github.com/janisto/chatmate/internal/platform/timeutil"
	"github.com/janisto/chatmate/internal/service/identity"
	sessionsvc "github.com/janisto/chatmate/internal/service/session"
)

// CodeExchanger runs the OAuth authorization-code flow for federated sign-in:
// AuthCodeURL is the consent page, Exchange turns the returned code into an ID token.
type CodeExchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

type handler struct {
	registry  *sessionsvc.Registry
	exchanger CodeExchanger
	states    *oauthStates
	prefix    string
}

// Register registers session endpoints. exchanger may be nil, in which case
// federated requests must carry an ID token.
func Register(api huma.API, registry *sessionsvc.Registry, exchanger CodeExchanger, prefix string) {
	h := &handler{registry: registry, exchanger: exchanger, states: newOAuthStates(), prefix: prefix}
	tags := []string{"Sessions"}

	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/sessions",
		Summary:       "Open a session",
		Description:   "Opens a device session. With a refresh token the principal is resumed and its profile loaded.",
		Tags:          tags,
		DefaultStatus: http.StatusCreated,
	}, h.create)

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}",
		Summary:     "Get session state",
		Tags:        tags,
	}, h.get)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-session",
		Method:        http.MethodDelete,
		Path:          "/sessions/{id}",
		Summary:       "Close a session",
		Description:   "Signs the session out and forgets it.",
		Tags:          tags,
		DefaultStatus: http.StatusNoContent,
	}, h.delete)

	huma.Register(api, huma.Operation{
		OperationID: "session-sign-up",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/sign-up",
		Summary:     "Sign up with email",
		Description: "Creates a principal and its profile. Returns the snapshot once the sign-up machine is terminal.",
		Tags:        tags,
	}, h.signUp)

	huma.Register(api, huma.Operation{
		OperationID: "session-sign-in",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/sign-in",
		Summary:     "Sign in with email",
		Tags:        tags,
	}, h.signIn)

	huma.Register(api, huma.Operation{
		OperationID: "session-federated",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/federated",
		Summary:     "Sign in or up with Google",
		Tags:        tags,
	}, h.federated)

	huma.Register(api, huma.Operation{
		OperationID: "session-federated-authorize",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/federated/authorize",
		Summary:     "Start the Google authorization-code flow",
		Description: "Returns the consent URL and the state to send back with the code. A new call replaces the pending state.",
		Tags:        tags,
	}, h.authorize)

	huma.Register(api, huma.Operation{
		OperationID: "session-sign-out",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/sign-out",
		Summary:     "Sign out",
		Description: "Clears the principal, the current profile and both machines. The session stays open.",
		Tags:        tags,
	}, h.signOut)

	huma.Register(api, huma.Operation{
		OperationID: "session-password-reset",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/password-reset",
		Summary:     "Request a password reset email",
		Tags:        tags,
	}, h.passwordReset)

	huma.Register(api, huma.Operation{
		OperationID: "session-reset",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/reset",
		Summary:     "Reset machines to idle",
		Tags:        tags,
	}, h.reset)

	sse.Register(api, huma.Operation{
		OperationID: "session-events",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/events",
		Summary:     "Stream session state",
		Description: "Server-Sent Events stream of snapshots, starting with the current one.",
		Tags:        tags,
	}, map[string]any{
		"session": Session{},
		"error":   huma.ErrorModel{},
	}, h.events)
}

func (h *handler) create(ctx context.Context, input *SessionCreateInput) (*SessionCreateOutput, error) {
	var refreshToken string
	if input.Body != nil {
		refreshToken = input.Body.RefreshToken
	}
	id, coord, err := h.registry.Open(ctx, refreshToken)
	if err != nil {
		return nil, mapError(ctx, err)
	}
	return &SessionCreateOutput{Location: h.prefix + "/sessions/" + id, Body: h.snapshot(ctx, id, coord)}, nil
}

func (h *handler) get(ctx context.Context, input *SessionPathInput) (*SessionOutput, error) {
	coord, err := h.registry.Get(input.ID)
	if err != nil {
		return nil, mapError(ctx, err)
	}
	return h.respond(ctx, input.ID, coord)
}

func (h *handler) delete(ctx context.Context, input *SessionPathInput) (*struct{}, error) {
	err := h.registry.Close(ctx, input.ID)
	h.states.forget(input.ID)
	if errors.Is(err, sessionsvc.ErrSessionNotFound) {
		return nil, mapError(ctx, err)
	}
	if err != nil {
		applog.LogWarn(ctx, "identity sign-out failed on close", zap.Error(err))
	}
	return nil, nil
}

func (h *handler) signUp(ctx context.Context, input *SignUpInput) (*SessionOutput, error) {
	coord, err := h.registry.Get(input.ID)
	if err != nil {
		return nil, mapError(ctx, err)
	}
	req := sessionsvc.SignUpRequest{
		Email:    input.Body.Email,
		Password: input.Body.Password,
		Username: input.Body.Username,
		BioLink:  input.Body.BioLink,
	}
	if len(input.Body.Image) > 0 {
		req.Image = &sessionsvc.Image{Data: input.Body.Image, ContentType: input.Body.ImageContentType}
	}
	if _, err := coord.SignUpWithEmail(ctx, req); err != nil {
		return nil, mapError(ctx, err)
	}
	return h.respond(ctx, input.ID, coord)
}

func (h *handler) signIn(ctx context.Context, input *SignInInput) (*SessionOutput, error) {
	coord, err := h.registry.Get(input.ID)
	if err != nil {
		return nil, mapError(ctx, err)
	}
	if _, err := coord.SignInWithEmail(ctx, input.Body.Email, input.Body.Password); err != nil {
		return nil, mapError(ctx, err)
	}
	return h.respond(ctx, input.ID, coord)
}

func (h *handler) federated(ctx context.Context, input *FederatedInput) (*SessionOutput, error) {
	coord, err := h.registry.Get(input.ID)
	if err != nil {
		return nil, mapError(ctx, err)
	}
	token := input.Body.IDToken
	if token == "" && input.Body.Code != "" {
		if h.exchanger == nil {
			return nil, huma.Error422UnprocessableEntity("authorization code exchange is not configured")
		}
		if !h.states.consume(input.ID, input.Body.State) {
			return nil, huma.Error422UnprocessableEntity("invalid or expired authorization state")
		}
		if token, err = h.exchanger.Exchange(ctx, input.Body.Code); err != nil {
			return nil, mapError(ctx, err)
		}
	}
	action := sessionsvc.Action(input.Body.Action)
	if _, err := coord.SignInOrUpWithFederatedIdentity(ctx, token, action, input.Body.Username); err != nil {
		return nil, mapError(ctx, err)
	}
	return h.respond(ctx, input.ID, coord)
}

func (h *handler) authorize(ctx context.Context, input *SessionPathInput) (*AuthorizeOutput, error) {
	if _, err := h.registry.Get(input.ID); err != nil {
		return nil, mapError(ctx, err)
	}
	if h.exchanger == nil {
		return nil, huma.Error501NotImplemented("authorization code exchange is not configured")
	}
	state, err := h.states.issue(input.ID)
	if err != nil {
		return nil, mapError(ctx, err)
	}
	return &AuthorizeOutput{Body: Authorization{URL: h.exchanger.AuthCodeURL(state), State: state}}, nil
}

func (h *handler) signOut(ctx context.Context, input *SessionPathInput) (*SessionOutput, error) {
	coord, err := h.registry.Get(input.ID)
	if err != nil {
		return nil, mapError(ctx, err)
	}
	if err := coord.SignOut(ctx); err != nil {
		applog.LogWarn(ctx, "identity sign-out failed; local state cleared", zap.Error(err))
	}
	return h.respond(ctx, input.ID, coord)
}

func (h *handler) passwordReset(ctx context.Context, input *PasswordResetInput) (*PasswordResetOutput, error) {
	coord, err := h.registry.Get(input.ID)
	if err != nil {
		return nil, mapError(ctx, err)
	}
	sent, err := coord.RequestPasswordReset(ctx, input.Body.Email)
	if err != nil {
		return nil, mapError(ctx, err)
	}
	return &PasswordResetOutput{Body: PasswordReset{Sent: sent}}, nil
}

func (h *handler) reset(ctx context.Context, input *ResetInput) (*SessionOutput, error) {
	coord, err := h.registry.Get(input.ID)
	if err != nil {
		return nil, mapError(ctx, err)
	}
	var machine string
	if input.Body != nil {
		machine = input.Body.Machine
	}
	switch machine {
	case string(sessionsvc.ActionSignIn):
		coord.ResetSignIn()
	case string(sessionsvc.ActionSignUp):
		coord.ResetSignUp()
	default:
		coord.ResetSignIn()
		coord.ResetSignUp()
	}
	return h.respond(ctx, input.ID, coord)
}

func (h *handler) events(ctx context.Context, input *SessionPathInput, send sse.Sender) {
	coord, err := h.registry.Get(input.ID)
	if err != nil {
		_ = send.Data(huma.ErrorModel{
			Status: http.StatusNotFound,
			Title:  http.StatusText(http.StatusNotFound),
			Detail: "session not found",
		})
		return
	}

	snapshots, cancel := coord.Watch()
	defer cancel()
	seq := 0
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			seq++
			if err := send(sse.Message{ID: seq, Data: toHTTPSession(input.ID, snap, nil)}); err != nil {
				return
			}
		}
	}
}

func (h *handler) respond(ctx context.Context, id string, coord *sessionsvc.Coordinator) (*SessionOutput, error) {
	return &SessionOutput{Body: h.snapshot(ctx, id, coord)}, nil
}

// snapshot reads the machines before the principal. The intent's outcome is
// already published, so a failed token refresh only drops the credentials.
func (h *handler) snapshot(ctx context.Context, id string, coord *sessionsvc.Coordinator) Session {
	snap := coord.Snapshot()
	principal, err := coord.Principal(ctx)
	if err != nil {
		applog.LogWarn(ctx, "credentials unavailable; snapshot sent without them",
			zap.String("sessionId", id), zap.Error(err))
		principal = nil
	}
	return toHTTPSession(id, snap, principal)
}

func mapError(ctx context.Context, err error) error {
	var verr *sessionsvc.Error
	switch {
	case errors.As(err, &verr) && verr.Kind == sessionsvc.KindValidation:
		return huma.Error422UnprocessableEntity(verr.Message)
	case errors.Is(err, sessionsvc.ErrSessionNotFound):
		return huma.Error404NotFound("session not found")
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout("request timed out")
	case errors.Is(err, context.Canceled):
		return huma.Error503ServiceUnavailable("request canceled")
	case errors.Is(err, identity.ErrInvalidToken), errors.Is(err, identity.ErrUserDisabled):
		return huma.Error401Unauthorized("invalid or expired credentials")
	case errors.Is(err, identity.ErrUnavailable):
		return huma.Error503ServiceUnavailable("identity service unavailable")
	default:
		applog.LogError(ctx, "session request failed", err)
		return huma.Error500InternalServerError("internal error")
	}
}

func toHTTPSession(id string, snap sessionsvc.Snapshot, principal *identity.Principal) Session {
	s := Session{
		ID:     id,
		SignIn: MachineState{Status: string(snap.SignIn.Status()), Error: snap.SignIn.Error},
		SignUp: MachineState{Status: string(snap.SignUp.Status())},
	}
	if snap.SignIn.Status() != sessionsvc.StatusFailed {
		s.SignIn.Error = nil
	}
	if snap.SignUp.Error != "" {
		msg := snap.SignUp.Error
		s.SignUp.Error = &msg
	}
	if snap.Profile != nil {
		p := profilehttp.ToHTTPProfile(snap.Profile)
		s.Profile = &p
	}
	if principal != nil {
		s.Credentials = &Credentials{
			PrincipalID:  principal.ID,
			IDToken:      principal.IDToken,
			RefreshToken: principal.RefreshToken,
			ExpiresAt:    timeutil.Time{Time: principal.ExpiresAt},
		}
	}
	return s
}
