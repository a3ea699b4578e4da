package logging

import (
	"context"

	"go.uber.org/zap"
)

// Audit results.
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
)

// AuditEvent describes a security-relevant action on an account or profile.
type AuditEvent struct {
	Action       string // e.g. "sign_up", "sign_in", "put"
	PrincipalID  string // empty when the principal is not yet known
	ResourceType string // "principal", "profile", "profile_image"
	ResourceID   string
	Result       string // AuditSuccess or AuditFailure
	Details      map[string]any
}

// LogAuditEvent logs a structured audit event. Details must never contain
// credentials or raw backend error text; use categorized reasons instead.
func LogAuditEvent(ctx context.Context, ev AuditEvent) {
	LoggerFromContext(ctx).Info("Audit event",
		zap.String("audit.action", ev.Action),
		zap.String("audit.principal_id", ev.PrincipalID),
		zap.String("audit.resource_type", ev.ResourceType),
		zap.String("audit.resource_id", ev.ResourceID),
		zap.String("audit.result", ev.Result),
		zap.Any("audit.details", ev.Details),
	)
}
