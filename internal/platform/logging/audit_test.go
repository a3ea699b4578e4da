package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogAuditEvent(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	ctx := ContextWithLogger(context.Background(), zap.New(core))

	LogAuditEvent(ctx, AuditEvent{
		Action:       "put",
		PrincipalID:  "uid-123",
		ResourceType: "profile",
		ResourceID:   "uid-123",
		Result:       AuditSuccess,
	})

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "Audit event" {
		t.Fatalf("unexpected message %q", entries[0].Message)
	}
	fields := entries[0].ContextMap()
	want := map[string]string{
		"audit.action":        "put",
		"audit.principal_id":  "uid-123",
		"audit.resource_type": "profile",
		"audit.resource_id":   "uid-123",
		"audit.result":        "success",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("%s = %v, want %s", k, fields[k], v)
		}
	}
}

func TestLogAuditEventFailureDetails(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	ctx := ContextWithLogger(context.Background(), zap.New(core))

	LogAuditEvent(ctx, AuditEvent{
		Action:       "sign_in",
		ResourceType: "principal",
		Result:       AuditFailure,
		Details:      map[string]any{"reason": "invalid_credentials"},
	})

	fields := recorded.All()[0].ContextMap()
	if fields["audit.result"] != "failure" {
		t.Fatalf("expected failure result, got %v", fields["audit.result"])
	}
	details, ok := fields["audit.details"].(map[string]any)
	if !ok || details["reason"] != "invalid_credentials" {
		t.Fatalf("unexpected details %#v", fields["audit.details"])
	}
}
