package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/obs"
)

// Audit event names.
const (
	EventLogin           = "auth.login"
	EventRegister        = "auth.register"
	EventBranchCreate    = "org.branch_create"
	EventInviteCreate    = "org.invite_create"
	EventMemberAccess    = "org.member_access"
	EventInviteExpired   = "org.invite_expired"
	EventLeadDelete      = "lead.delete"
	EventPromptDelete    = "prompt.delete"
	EventWebhookRejected = "webhook.rejected"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with the request id and the
// authorized user, when present.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	zf := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		zf = append(zf, zap.String("request_id", rid))
	}
	if user, ok := auth.UserFromContext(ctx); ok {
		zf = append(zf, zap.String("user_id", user.ID), zap.String("organization_id", user.OrganizationID))
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	zf = append(zf, zap.Any("fields", copyFields))

	obs.Logger().Info("audit", zf...)
	return nil
}
