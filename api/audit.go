package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess    AuditEvent = "login_success"
	AuditLoginFailure    AuditEvent = "login_failure"
	AuditRegister        AuditEvent = "register"
	AuditRegisterFailure AuditEvent = "register_failure"
	AuditCaptchaInvalid  AuditEvent = "captcha_invalid"
	AuditLogout          AuditEvent = "logout"
	AuditSectionCreated  AuditEvent = "section_created"
	AuditSectionUpdated  AuditEvent = "section_updated"
	AuditSettingsUpdated AuditEvent = "settings_updated"
	AuditForbidden       AuditEvent = "forbidden"
)

// auditLogger wraps slog.Logger for structured security audit logging.
// clientIP resolves the same client key the rate limiter counts.
type auditLogger struct {
	logger   *slog.Logger
	clientIP func(*http.Request) string
}

func newAuditLogger(logger *slog.Logger, clientIP func(*http.Request) string) *auditLogger {
	return &auditLogger{
		logger:   logger.With("component", "audit"),
		clientIP: clientIP,
	}
}

func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("client_ip", al.clientIP(r)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
}

// logEvent is a convenience for events performed by a known user.
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, userID string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("user_id", userID),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logFailure logs a rejected request.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
