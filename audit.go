package lockr

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/lockr/internal/audit"
)

// AuditEvent is one client-side authentication event.
type AuditEvent = audit.Event

// AuditSink consumes audit events. Emit is called from the dispatcher
// goroutine, never from the operation that produced the event.
type AuditSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	SlogSink       = audit.SlogSink
)

// Audit event types.
const (
	AuditLogin             = "login"
	AuditRegister          = "register"
	AuditMFAVerify         = "mfa_verify"
	AuditBackupCodeVerify  = "backup_code_verify"
	AuditBackupCodesRotate = "backup_codes_rotate"
	AuditSecretSetup       = "secret_setup"
	AuditUnlock            = "unlock"
	AuditSessionExpired    = "session_expired"
	AuditLogout            = "logout"
)

func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

func NewSlogSink(log *slog.Logger) SlogSink { return audit.SlogSink{Logger: log} }
