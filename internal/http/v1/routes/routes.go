package routes

import (
	"net/url"

	"github.com/danielgtaylor/huma/v2"

	"github.com/janisto/chatmate/internal/http/v1/profile"
	"github.com/janisto/chatmate/internal/http/v1/session"
	"github.com/janisto/chatmate/internal/platform/auth"
	sessionsvc "github.com/janisto/chatmate/internal/service/session"
)

// Register wires all HTTP routes into the provided API router. exchanger may be nil.
func Register(
	api huma.API,
	verifier auth.Verifier,
	registry *sessionsvc.Registry,
	exchanger session.CodeExchanger,
) {
	prefix := apiPrefix(api)

	// Apply auth middleware for protected endpoints
	api.UseMiddleware(auth.NewMiddleware(api, verifier))

	profile.Register(api, registry.Profiles())
	session.Register(api, registry, exchanger, prefix)
}

func apiPrefix(api huma.API) string {
	for _, s := range api.OpenAPI().Servers {
		if u, err := url.Parse(s.URL); err == nil && u.Path != "" {
			return u.Path
		}
	}
	return ""
}
