package audit

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/obs"
)

func TestLogEvent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := obs.SetLogger(zap.New(core))
	defer restore()

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithUser(ctx, auth.User{ID: "user_42", OrganizationID: "org_1", Role: auth.RoleAdmin})

	fields := map[string]any{"lead_id": "lead_1"}
	if err := LogEvent(ctx, EventLeadDelete, fields); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}
	fields["lead_id"] = "mutated"

	entries := logs.FilterMessage("audit").All()
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	got := entries[0].ContextMap()
	if got["type"] != "audit" {
		t.Fatalf("unexpected type: %v", got["type"])
	}
	if got["event"] != EventLeadDelete {
		t.Fatalf("unexpected event: %v", got["event"])
	}
	if got["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", got["request_id"])
	}
	if got["user_id"] != "user_42" || got["organization_id"] != "org_1" {
		t.Fatalf("unexpected user context: %v", got)
	}
	logged, ok := got["fields"].(map[string]any)
	if !ok || logged["lead_id"] != "lead_1" {
		t.Fatalf("fields missing or incorrect: %v", got["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatalf("expected error for blank event")
	}
}
