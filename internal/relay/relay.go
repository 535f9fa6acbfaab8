// Package relay implements the conversation state machine between Telegram
// users and the remote agent: sessions are created lazily on the first
// message, reused for subsequent messages, and torn down when the agent's
// response carries the terminate keyword or the user sends a command.
package relay

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"telegram-agent-bot/internal/agent"
	"telegram-agent-bot/internal/domain"
	"telegram-agent-bot/internal/store"
)

// TerminateKeyword ends a conversation when it appears anywhere in an
// agent response. Matching is plain substring search on the concatenated
// response text.
const TerminateKeyword = "TERMINATE"

// User-facing replies.
const (
	msgNotInitialized    = "Sorry, the AI agent is not initialized. Please contact the administrator."
	msgCreateFailed      = "Sorry, I couldn't start a conversation. Please try again later."
	msgNoResponse        = "Sorry, I didn't receive a response. Please try again."
	msgQueryFailed       = "Sorry, I encountered an error processing your message. Please try again."
	msgConversationEnded = "Conversation ended. Send me a message anytime to start a new conversation!"
	msgNoConversation    = "No active conversation. Send me a message to start chatting!"
)

// Messenger sends outbound traffic to a chat.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendTyping(ctx context.Context, chatID int64) error
}

// Inbound is one update delivered by the bot runtime.
type Inbound struct {
	UserID    int64
	ChatID    int64
	FirstName string
	Text      string
}

// Valid reports whether the update carries enough identity to process.
func (in Inbound) Valid() bool {
	return in.UserID != 0 && in.ChatID != 0
}

// Relay owns the per-user conversation lifecycle. The session map is
// guarded by a mutex; individual turns for different users may run
// concurrently, the bot framework serializes turns per user.
type Relay struct {
	manager *agent.Manager
	out     Messenger
	repo    store.Repository // nil keeps sessions in memory only
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[int64]*domain.Session
}

// New constructs a relay. repo may be nil to disable persistence.
func New(manager *agent.Manager, out Messenger, repo store.Repository, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		manager:  manager,
		out:      out,
		repo:     repo,
		logger:   logger,
		sessions: make(map[int64]*domain.Session),
	}
}

// HandleMessage processes one plain text message: it starts a conversation
// when none exists, forwards the text to the agent, streams the response
// back, and ends the conversation when the response carries the terminate
// keyword.
func (r *Relay) HandleMessage(ctx context.Context, in Inbound) {
	if !in.Valid() || in.Text == "" {
		r.logger.Error("dropping malformed update", "user_id", in.UserID, "chat_id", in.ChatID)
		return
	}

	engine, err := r.manager.Engine()
	if err != nil {
		r.reply(ctx, in.ChatID, msgNotInitialized)
		return
	}

	remoteUserID := strconv.FormatInt(in.UserID, 10)

	session, isFirst, err := r.ensureSession(ctx, engine, in.UserID, remoteUserID)
	if err != nil {
		r.logger.Error("failed to create session", "user_id", in.UserID, "error", err)
		r.reply(ctx, in.ChatID, msgCreateFailed)
		return
	}

	message := in.Text
	if isFirst {
		message = greeting(in.FirstName) + in.Text
		r.logger.Info("first message with greeting", "user_id", in.UserID)
	}

	if err := r.out.SendTyping(ctx, in.ChatID); err != nil {
		r.logger.Warn("failed to send typing action", "chat_id", in.ChatID, "error", err)
	}

	text, err := collectResponse(engine.StreamQuery(ctx, remoteUserID, session.SessionID, message))
	if err != nil {
		r.logger.Error("error querying agent",
			"user_id", in.UserID,
			"session_id", session.SessionID,
			"error", err)
		r.reply(ctx, in.ChatID, msgQueryFailed)
		return
	}

	if text == "" {
		r.logger.Warn("empty response from agent", "user_id", in.UserID)
		r.reply(ctx, in.ChatID, msgNoResponse)
		return
	}

	if strings.Contains(text, TerminateKeyword) {
		r.finish(ctx, engine, in, remoteUserID, session.SessionID, text)
		return
	}

	r.reply(ctx, in.ChatID, text)
}

// HandleCommand ends the active conversation, if any. Commands never
// consult the agent.
func (r *Relay) HandleCommand(ctx context.Context, in Inbound) {
	if !in.Valid() {
		r.logger.Error("dropping malformed command update", "user_id", in.UserID, "chat_id", in.ChatID)
		return
	}

	r.mu.Lock()
	session := r.sessions[in.UserID]
	r.mu.Unlock()
	if session == nil {
		session = r.restoreSession(ctx, in.UserID)
	}

	if session == nil {
		r.reply(ctx, in.ChatID, msgNoConversation)
		return
	}

	if engine, err := r.manager.Engine(); err == nil {
		r.deleteRemoteSession(ctx, engine, strconv.FormatInt(in.UserID, 10), session.SessionID)
	}
	r.forgetSession(ctx, in.UserID)
	r.reply(ctx, in.ChatID, msgConversationEnded)
}

// HasSession reports whether a conversation is currently active in memory
// for the user.
func (r *Relay) HasSession(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[userID]
	return ok
}

// ensureSession returns the user's session, creating one remotely when
// absent. The bool reports whether this turn created it.
func (r *Relay) ensureSession(ctx context.Context, engine agent.Engine, userID int64, remoteUserID string) (*domain.Session, bool, error) {
	r.mu.Lock()
	session := r.sessions[userID]
	r.mu.Unlock()
	if session != nil {
		return session, false, nil
	}

	if restored := r.restoreSession(ctx, userID); restored != nil {
		return restored, false, nil
	}

	r.logger.Info("starting new conversation", "user_id", userID)
	sessionID, err := engine.CreateSession(ctx, remoteUserID)
	if err != nil {
		return nil, false, err
	}

	now := time.Now()
	session = &domain.Session{
		UserID:    userID,
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.sessions[userID] = session
	r.mu.Unlock()
	r.persistSession(ctx, session)

	r.logger.Info("created session", "user_id", userID, "session_id", sessionID)
	return session, true, nil
}

// restoreSession pulls a persisted session into the in-memory map, so
// conversations survive process restarts.
func (r *Relay) restoreSession(ctx context.Context, userID int64) *domain.Session {
	if r.repo == nil {
		return nil
	}
	session, err := r.repo.GetSession(ctx, userID)
	if err != nil {
		r.logger.Warn("failed to read persisted session", "user_id", userID, "error", err)
		return nil
	}
	if session == nil {
		return nil
	}

	r.mu.Lock()
	r.sessions[userID] = session
	r.mu.Unlock()

	r.logger.Info("restored persisted session", "user_id", userID, "session_id", session.SessionID)
	return session
}

func (r *Relay) persistSession(ctx context.Context, session *domain.Session) {
	if r.repo == nil {
		return
	}
	if err := r.repo.UpsertSession(ctx, session); err != nil {
		r.logger.Warn("failed to persist session", "user_id", session.UserID, "error", err)
	}
}

// forgetSession removes the session from the map and the store. Store
// failures are logged and never block the transition.
func (r *Relay) forgetSession(ctx context.Context, userID int64) {
	r.mu.Lock()
	delete(r.sessions, userID)
	r.mu.Unlock()

	if r.repo == nil {
		return
	}
	if err := r.repo.DeleteSession(ctx, userID); err != nil {
		r.logger.Warn("failed to delete persisted session", "user_id", userID, "error", err)
	}
}

// finish strips the terminate keyword from the response, sends whatever
// text remains, and unconditionally tears the session down.
func (r *Relay) finish(ctx context.Context, engine agent.Engine, in Inbound, remoteUserID, sessionID, text string) {
	r.logger.Info("terminate keyword detected, ending conversation", "user_id", in.UserID)

	clean := strings.TrimSpace(strings.ReplaceAll(text, TerminateKeyword, ""))
	if clean != "" {
		r.reply(ctx, in.ChatID, clean)
	}

	r.deleteRemoteSession(ctx, engine, remoteUserID, sessionID)
	r.forgetSession(ctx, in.UserID)
}

// deleteRemoteSession is best effort: failures are logged and swallowed so
// teardown never surfaces an error to the chat.
func (r *Relay) deleteRemoteSession(ctx context.Context, engine agent.Engine, remoteUserID, sessionID string) {
	if err := engine.DeleteSession(ctx, remoteUserID, sessionID); err != nil {
		r.logger.Warn("error deleting session", "user_id", remoteUserID, "session_id", sessionID, "error", err)
		return
	}
	r.logger.Info("deleted session", "user_id", remoteUserID, "session_id", sessionID)
}

func (r *Relay) reply(ctx context.Context, chatID int64, text string) {
	if err := r.out.SendMessage(ctx, chatID, text); err != nil {
		r.logger.Error("failed to send message", "chat_id", chatID, "error", err)
	}
}

// collectResponse drains the event stream and concatenates every text part
// in delivery order.
func collectResponse(events iter.Seq2[agent.StreamEvent, error]) (string, error) {
	var b strings.Builder
	for ev, err := range events {
		if err != nil {
			return "", err
		}
		b.WriteString(ev.Text())
	}
	return b.String(), nil
}

// greeting prefixes the first agent-bound message of a conversation so the
// agent learns the user's name. It never changes what the user sees.
func greeting(firstName string) string {
	if firstName == "" {
		firstName = "there"
	}
	return fmt.Sprintf("Hello, my name is %s. ", firstName)
}
