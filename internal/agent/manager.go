package agent

import (
	"context"
	"errors"
	"iter"
	"sync"
)

// Engine is the set of remote agent operations the relay depends on.
type Engine interface {
	// CreateSession requests a new session for the given user.
	CreateSession(ctx context.Context, userID string) (string, error)

	// StreamQuery sends a message within an existing session and yields
	// response events as they arrive.
	StreamQuery(ctx context.Context, userID, sessionID, message string) iter.Seq2[StreamEvent, error]

	// DeleteSession tears down a remote session.
	DeleteSession(ctx context.Context, userID, sessionID string) error
}

// Ensure Client implements Engine.
var _ Engine = (*Client)(nil)

// ErrNotInitialized is returned when the engine handle is read before
// Initialize has been called.
var ErrNotInitialized = errors.New("agent engine not initialized")

// ErrAlreadyInitialized is returned on a second Initialize call.
var ErrAlreadyInitialized = errors.New("agent engine already initialized")

// Manager holds the process-wide agent engine handle. It moves from
// uninitialized to initialized exactly once and never reverts.
type Manager struct {
	mu     sync.RWMutex
	engine Engine
}

// NewManager returns an uninitialized manager.
func NewManager() *Manager {
	return &Manager{}
}

// Initialize stores the engine handle. It succeeds at most once.
func (m *Manager) Initialize(engine Engine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine != nil {
		return ErrAlreadyInitialized
	}
	m.engine = engine
	return nil
}

// Engine returns the handle, or ErrNotInitialized before Initialize.
func (m *Manager) Engine() (Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.engine == nil {
		return nil, ErrNotInitialized
	}
	return m.engine, nil
}

// Initialized reports whether the handle is available.
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engine != nil
}
