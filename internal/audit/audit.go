// Package audit records security-relevant events as a stream distinct
// from ordinary application logs. Failed credentials, revoked sessions,
// role violations, and rate-limit trips all land here; the stream is the
// detection surface for credential-stuffing and privilege-escalation
// attempts.
package audit

import (
	"time"

	"github.com/rs/zerolog"
)

// Event names emitted by the auth core.
const (
	EventRegister      = "auth.register"
	EventLogin         = "auth.login"
	EventLogout        = "auth.logout"
	EventLogoutAll     = "auth.logout_all"
	EventRefresh       = "auth.refresh"
	EventAuthenticate  = "auth.authenticate"
	EventRoleDenied    = "auth.role_denied"
	EventRateLimited   = "auth.rate_limited"
	EventStoreDegraded = "auth.store_degraded"
)

// Event is one security event. Zero-valued fields are omitted from output.
type Event struct {
	Name      string
	Success   bool
	AccountID string
	Email     string
	SessionID string
	IP        string
	UserAgent string
	Path      string
	Reason    string
	Metadata  map[string]string
}

// Recorder writes audit events through a zerolog logger. Events are
// tagged audit=true so the stream can be filtered or shipped separately.
type Recorder struct {
	log zerolog.Logger
	now func() time.Time
}

func NewRecorder(log zerolog.Logger) *Recorder {
	return &Recorder{
		log: log.With().Bool("audit", true).Logger(),
		now: time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (r *Recorder) WithNow(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Record emits the event. Successes log at info, failures at warn.
func (r *Recorder) Record(ev Event) {
	if r == nil {
		return
	}
	var line *zerolog.Event
	if ev.Success {
		line = r.log.Info()
	} else {
		line = r.log.Warn()
	}

	line = line.
		Str("event", ev.Name).
		Bool("success", ev.Success).
		Time("at", r.now().UTC())

	if ev.AccountID != "" {
		line = line.Str("account_id", ev.AccountID)
	}
	if ev.Email != "" {
		line = line.Str("email", ev.Email)
	}
	if ev.SessionID != "" {
		line = line.Str("session_id", ev.SessionID)
	}
	if ev.IP != "" {
		line = line.Str("ip", ev.IP)
	}
	if ev.UserAgent != "" {
		line = line.Str("user_agent", ev.UserAgent)
	}
	if ev.Path != "" {
		line = line.Str("path", ev.Path)
	}
	if ev.Reason != "" {
		line = line.Str("reason", ev.Reason)
	}
	for k, v := range ev.Metadata {
		line = line.Str(k, v)
	}

	line.Msg("security event")
}
