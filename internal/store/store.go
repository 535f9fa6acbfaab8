// Package store provides persistence for conversation sessions.
package store

import (
	"context"

	"telegram-agent-bot/internal/domain"
)

// Repository persists the user to agent-session mapping so conversations
// survive process restarts. Implementations must be safe for concurrent
// use; the relay calls it from concurrent per-user turns.
type Repository interface {
	// GetSession retrieves the stored session for a user, or nil when
	// none exists.
	GetSession(ctx context.Context, userID int64) (*domain.Session, error)

	// UpsertSession creates or replaces the stored session for a user.
	UpsertSession(ctx context.Context, session *domain.Session) error

	// DeleteSession removes the stored session for a user.
	DeleteSession(ctx context.Context, userID int64) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
