// Package blob stores profile images and resolves retrievable URLs for them.
package blob

import (
	"context"
	"errors"
	"net/http"

	applog "github.com/janisto/chatmate/internal/platform/logging"
)

// ErrNotFound is returned when no object exists under an ID.
var ErrNotFound = errors.New("blob not found")

// Store is keyed by principal ID; one image per principal.
type Store interface {
	Upload(ctx context.Context, id string, data []byte, contentType string) error
	DownloadURL(ctx context.Context, id string) (string, error)
}

func contentTypeOf(data []byte, declared string) string {
	if declared != "" {
		return declared
	}
	return http.DetectContentType(data)
}

func auditUpload(ctx context.Context, id string, err error) {
	ev := applog.AuditEvent{
		Action:       "upload",
		PrincipalID:  id,
		ResourceType: "profile_image",
		ResourceID:   id,
		Result:       applog.AuditSuccess,
	}
	if err != nil {
		ev.Result = applog.AuditFailure
		ev.Details = map[string]any{"error": categorizeError(err)}
	}
	applog.LogAuditEvent(ctx, ev)
}

func categorizeError(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	default:
		return "internal_error"
	}
}
