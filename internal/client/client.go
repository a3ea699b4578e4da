// Package client is a small HTTP client for the session API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	profilehttp "github.com/janisto/chatmate/internal/http/v1/profile"
	sessionhttp "github.com/janisto/chatmate/internal/http/v1/session"
)

// APIError is a problem response from the server.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Detail)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client talks to one server. BaseURL includes the API prefix, e.g.
// http://localhost:8080/v1.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// SignUpRequest mirrors the sign-up body.
type SignUpRequest struct {
	Email            string  `json:"email"`
	Password         string  `json:"password"`
	Username         string  `json:"username"`
	BioLink          *string `json:"bioLink,omitempty"`
	Image            []byte  `json:"image,omitempty"`
	ImageContentType string  `json:"imageContentType,omitempty"`
}

// FederatedRequest mirrors the federated body.
type FederatedRequest struct {
	IDToken  string `json:"idToken,omitempty"`
	Code     string `json:"code,omitempty"`
	State    string `json:"state,omitempty"`
	Action   string `json:"action"`
	Username string `json:"username,omitempty"`
}

func (c *Client) OpenSession(ctx context.Context, refreshToken string) (*sessionhttp.Session, error) {
	var body any
	if refreshToken != "" {
		body = map[string]string{"refreshToken": refreshToken}
	}
	var out sessionhttp.Session
	return &out, c.do(ctx, http.MethodPost, "/sessions", body, &out)
}

func (c *Client) Session(ctx context.Context, id string) (*sessionhttp.Session, error) {
	var out sessionhttp.Session
	return &out, c.do(ctx, http.MethodGet, sessionPath(id, ""), nil, &out)
}

func (c *Client) SignUp(ctx context.Context, id string, req SignUpRequest) (*sessionhttp.Session, error) {
	var out sessionhttp.Session
	return &out, c.do(ctx, http.MethodPost, sessionPath(id, "/sign-up"), req, &out)
}

func (c *Client) SignIn(ctx context.Context, id, email, password string) (*sessionhttp.Session, error) {
	var out sessionhttp.Session
	body := map[string]string{"email": email, "password": password}
	return &out, c.do(ctx, http.MethodPost, sessionPath(id, "/sign-in"), body, &out)
}

func (c *Client) Federated(ctx context.Context, id string, req FederatedRequest) (*sessionhttp.Session, error) {
	var out sessionhttp.Session
	return &out, c.do(ctx, http.MethodPost, sessionPath(id, "/federated"), req, &out)
}

// GoogleAuthorize starts the authorization-code flow for session id.
func (c *Client) GoogleAuthorize(ctx context.Context, id string) (*sessionhttp.Authorization, error) {
	var out sessionhttp.Authorization
	return &out, c.do(ctx, http.MethodGet, sessionPath(id, "/federated/authorize"), nil, &out)
}

func (c *Client) SignOut(ctx context.Context, id string) (*sessionhttp.Session, error) {
	var out sessionhttp.Session
	return &out, c.do(ctx, http.MethodPost, sessionPath(id, "/sign-out"), nil, &out)
}

func (c *Client) CloseSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(id, ""), nil, nil)
}

// PasswordReset reports whether the reset email was sent.
func (c *Client) PasswordReset(ctx context.Context, id, email string) (bool, error) {
	var out sessionhttp.PasswordReset
	err := c.do(ctx, http.MethodPost, sessionPath(id, "/password-reset"), map[string]string{"email": email}, &out)
	return out.Sent, err
}

func (c *Client) UsernameAvailability(ctx context.Context, username string) (*profilehttp.Availability, error) {
	var out profilehttp.Availability
	path := "/usernames/" + url.PathEscape(username) + "/availability"
	return &out, c.do(ctx, http.MethodGet, path, nil, &out)
}

// Profile reads the profile of the principal idToken was issued to.
func (c *Client) Profile(ctx context.Context, idToken string) (*profilehttp.Profile, error) {
	var out profilehttp.Profile
	return &out, c.doAuth(ctx, http.MethodGet, "/profile", idToken, nil, &out)
}

func sessionPath(id, suffix string) string {
	return "/sessions/" + url.PathEscape(id) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	return c.doAuth(ctx, method, path, "", in, out)
}

func (c *Client) doAuth(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var problem huma.ErrorModel
		if err := json.NewDecoder(resp.Body).Decode(&problem); err != nil || problem.Detail == "" {
			problem.Detail = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Detail: problem.Detail}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
