package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"telegram-agent-bot/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()

	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return repo
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	session := &domain.Session{
		UserID:    42,
		SessionID: "sess-1",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.UpsertSession(ctx, session); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	got, err := repo.GetSession(ctx, 42)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected a session, got nil")
	}
	if got.SessionID != "sess-1" || got.UserID != 42 {
		t.Errorf("unexpected session: %+v", got)
	}
	if got.CreatedAt.Unix() != now.Unix() {
		t.Errorf("created_at mismatch: got %v want %v", got.CreatedAt, now)
	}
}

func TestGetSessionMissingReturnsNil(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)

	got, err := repo.GetSession(context.Background(), 999)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing session, got %+v", got)
	}
}

func TestUpsertSessionReplaces(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	first := &domain.Session{UserID: 42, SessionID: "sess-1", CreatedAt: now, UpdatedAt: now}
	if err := repo.UpsertSession(ctx, first); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	second := &domain.Session{UserID: 42, SessionID: "sess-2", CreatedAt: now, UpdatedAt: now}
	if err := repo.UpsertSession(ctx, second); err != nil {
		t.Fatalf("second UpsertSession failed: %v", err)
	}

	got, err := repo.GetSession(ctx, 42)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.SessionID != "sess-2" {
		t.Errorf("expected replacement session sess-2, got %q", got.SessionID)
	}
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	session := &domain.Session{UserID: 42, SessionID: "sess-1", CreatedAt: now, UpdatedAt: now}
	if err := repo.UpsertSession(ctx, session); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}
	if err := repo.DeleteSession(ctx, 42); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	got, err := repo.GetSession(ctx, 42)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected session to be gone, got %+v", got)
	}

	// Deleting a missing session is not an error.
	if err := repo.DeleteSession(ctx, 42); err != nil {
		t.Errorf("DeleteSession of missing row failed: %v", err)
	}
}
