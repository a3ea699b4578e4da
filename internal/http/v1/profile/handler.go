package profile

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/janisto/chatmate/internal/platform/auth"
	applog "github.com/janisto/chatmate/internal/platform/logging"
	"github.com/janisto/chatmate/internal/platform/timeutil"
	profilesvc "github.com/janisto/chatmate/internal/service/profile"
	sessionsvc "github.com/janisto/chatmate/internal/service/session"
)

// Register registers profile endpoints.
func Register(api huma.API, store profilesvc.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/profile",
		Summary:     "Get current user's profile",
		Description: "Retrieves the profile stored for the principal the bearer ID token was issued to.",
		Tags:        []string{"Profile"},
		Security: []map[string][]string{
			{"bearerAuth": {}},
		},
	}, func(ctx context.Context, _ *ProfileGetInput) (*ProfileGetOutput, error) {
		caller := auth.CallerFromContext(ctx)

		p, err := store.Get(ctx, caller.UID)
		if err != nil {
			return nil, mapStoreError(ctx, err)
		}
		return &ProfileGetOutput{Body: ToHTTPProfile(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-username-availability",
		Method:      http.MethodGet,
		Path:        "/usernames/{username}/availability",
		Summary:     "Check username availability",
		Description: "Validates the username and reports whether any stored profile already uses it.",
		Tags:        []string{"Profile"},
	}, func(ctx context.Context, input *AvailabilityInput) (*AvailabilityOutput, error) {
		msg, err := sessionsvc.CheckUsername(ctx, store, input.Username)
		if err != nil {
			return nil, mapStoreError(ctx, err)
		}
		return &AvailabilityOutput{Body: Availability{Available: msg == "", Message: msg}}, nil
	})
}

func mapStoreError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, profilesvc.ErrNotFound):
		return huma.Error404NotFound("profile not found")
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout("request timed out")
	case errors.Is(err, context.Canceled):
		return huma.Error503ServiceUnavailable("request canceled")
	default:
		applog.LogError(ctx, "profile store failure", err)
		return huma.Error500InternalServerError("internal error")
	}
}

// ToHTTPProfile converts a stored profile to its response shape.
func ToHTTPProfile(p *profilesvc.Profile) Profile {
	return Profile{
		ID:       p.ID,
		Username: p.Username,
		Email:    p.Email,
		ImageURL: p.ImageURL,
		Bio:      p.Bio,
		BioLink:  p.BioLink,
		AddedAt:  timeutil.FromMillis(p.AddedAt),
	}
}
