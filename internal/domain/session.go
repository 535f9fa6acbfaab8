// Package domain contains core domain types for the relay.
package domain

import (
	"time"
)

// Session binds one Telegram user to one remote agent session. The
// SessionID is an opaque token issued by the agent engine; the relay never
// inspects it. A user has at most one session at a time.
type Session struct {
	UserID    int64
	SessionID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Age returns how long ago the session was created.
func (s *Session) Age() time.Duration {
	return time.Since(s.CreatedAt)
}
