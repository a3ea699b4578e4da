// Package cli is an interactive terminal front end for the session API.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/janisto/chatmate/internal/client"
	sessionhttp "github.com/janisto/chatmate/internal/http/v1/session"
)

// API is the part of client.Client the terminal uses.
type API interface {
	OpenSession(ctx context.Context, refreshToken string) (*sessionhttp.Session, error)
	SignUp(ctx context.Context, id string, req client.SignUpRequest) (*sessionhttp.Session, error)
	SignIn(ctx context.Context, id, email, password string) (*sessionhttp.Session, error)
	Federated(ctx context.Context, id string, req client.FederatedRequest) (*sessionhttp.Session, error)
	GoogleAuthorize(ctx context.Context, id string) (*sessionhttp.Authorization, error)
	SignOut(ctx context.Context, id string) (*sessionhttp.Session, error)
	CloseSession(ctx context.Context, id string) error
	PasswordReset(ctx context.Context, id, email string) (bool, error)
}

// App holds one terminal session.
type App struct {
	api     API
	in      *bufio.Reader
	out     io.Writer
	session *sessionhttp.Session
}

func NewApp(api API, in io.Reader, out io.Writer) *App {
	return &App{api: api, in: bufio.NewReader(in), out: out}
}

// Open starts a server session, resuming refreshToken when non-empty.
func (a *App) Open(ctx context.Context, refreshToken string) error {
	s, err := a.api.OpenSession(ctx, refreshToken)
	if err != nil {
		return err
	}
	a.session = s
	return nil
}

// Close ends the server session.
func (a *App) Close(ctx context.Context) error {
	if a.session == nil {
		return nil
	}
	err := a.api.CloseSession(ctx, a.session.ID)
	a.session = nil
	return err
}

func (a *App) status() string {
	if a.session != nil && a.session.Profile != nil {
		return a.session.Profile.Username
	}
	return "signed out"
}

func (a *App) SignUp(ctx context.Context) error {
	var req client.SignUpRequest
	var err error
	if req.Email, err = prompt(a.in, a.out, "Email"); err != nil {
		return err
	}
	if req.Username, err = prompt(a.in, a.out, "Username"); err != nil {
		return err
	}
	if req.Password, err = promptPassword(a.in, a.out); err != nil {
		return err
	}
	link, err := prompt(a.in, a.out, "Bio link (optional)")
	if err != nil {
		return err
	}
	if link != "" {
		req.BioLink = &link
	}
	imagePath, err := prompt(a.in, a.out, "Profile image file (optional)")
	if err != nil {
		return err
	}
	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		req.Image = data
		req.ImageContentType = http.DetectContentType(data)
	}
	s, err := a.api.SignUp(ctx, a.session.ID, req)
	return a.report(s, err, func(s *sessionhttp.Session) sessionhttp.MachineState { return s.SignUp })
}

func (a *App) SignIn(ctx context.Context) error {
	email, err := prompt(a.in, a.out, "Email")
	if err != nil {
		return err
	}
	password, err := promptPassword(a.in, a.out)
	if err != nil {
		return err
	}
	s, err := a.api.SignIn(ctx, a.session.ID, email, password)
	return a.report(s, err, func(s *sessionhttp.Session) sessionhttp.MachineState { return s.SignIn })
}

// Google runs federated sign-in or sign-up. The user pastes a Google ID token,
// or leaves it empty to authorize in a browser and paste the returned code.
func (a *App) Google(ctx context.Context, action string) error {
	req := client.FederatedRequest{Action: action}
	var err error
	if req.IDToken, err = prompt(a.in, a.out, "Google ID token (empty to use a browser)"); err != nil {
		return err
	}
	if req.IDToken == "" {
		auth, err := a.api.GoogleAuthorize(ctx, a.session.ID)
		if err != nil {
			return a.report(nil, err, nil)
		}
		fmt.Fprintln(a.out, "Open this page and approve access:")
		fmt.Fprintln(a.out, auth.URL)
		if req.Code, err = prompt(a.in, a.out, "Authorization code"); err != nil {
			return err
		}
		req.State = auth.State
	}
	if action == "signUp" {
		if req.Username, err = prompt(a.in, a.out, "Username"); err != nil {
			return err
		}
	}
	s, err := a.api.Federated(ctx, a.session.ID, req)
	return a.report(s, err, func(s *sessionhttp.Session) sessionhttp.MachineState {
		if action == "signUp" {
			return s.SignUp
		}
		return s.SignIn
	})
}

func (a *App) ForgotPassword(ctx context.Context) error {
	email, err := prompt(a.in, a.out, "Email")
	if err != nil {
		return err
	}
	sent, err := a.api.PasswordReset(ctx, a.session.ID, email)
	if err != nil {
		return a.report(nil, err, nil)
	}
	if sent {
		fmt.Fprintln(a.out, "Password reset email sent.")
	} else {
		fmt.Fprintln(a.out, "Could not send a password reset email.")
	}
	return nil
}

func (a *App) SignOut(ctx context.Context) error {
	s, err := a.api.SignOut(ctx, a.session.ID)
	if err != nil {
		return a.report(nil, err, nil)
	}
	a.session = s
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

func (a *App) Whoami() {
	if a.session == nil || a.session.Profile == nil {
		fmt.Fprintln(a.out, "Not signed in.")
		return
	}
	p := a.session.Profile
	fmt.Fprintf(a.out, "%s <%s>\n%s\n", p.Username, p.Email, p.Bio)
	if p.BioLink != nil {
		fmt.Fprintln(a.out, *p.BioLink)
	}
}

// RefreshToken returns the token that resumes this principal, if signed in.
func (a *App) RefreshToken() string {
	if a.session == nil || a.session.Credentials == nil {
		return ""
	}
	return a.session.Credentials.RefreshToken
}

// report prints the machine outcome or the request error.
func (a *App) report(s *sessionhttp.Session, err error, machine func(*sessionhttp.Session) sessionhttp.MachineState) error {
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			fmt.Fprintln(a.out, apiErr.Detail)
			return nil
		}
		return err
	}
	a.session = s
	state := machine(s)
	switch {
	case state.Status == "succeeded":
		fmt.Fprintf(a.out, "Welcome, %s!\n", a.status())
	case state.Error != nil:
		fmt.Fprintln(a.out, *state.Error)
	default:
		fmt.Fprintln(a.out, state.Status)
	}
	return nil
}
