// Package telegram wires the relay into the Telegram Bot API: it builds
// the bot client, routes inbound updates to the relay, and runs either the
// long-poll loop or the webhook listener.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"telegram-agent-bot/internal/config"
	"telegram-agent-bot/internal/relay"
)

// Handler is the subset of the relay the runtime dispatches to.
type Handler interface {
	HandleMessage(ctx context.Context, in relay.Inbound)
	HandleCommand(ctx context.Context, in relay.Inbound)
}

// Runtime connects the Telegram bot to the relay and runs the update loop.
// It also implements the relay's Messenger for the outbound direction.
type Runtime struct {
	bot    *bot.Bot
	cfg    *config.BotConfig
	logger *slog.Logger
}

// Ensure Runtime implements the relay's outbound interface.
var _ relay.Messenger = (*Runtime)(nil)

// New builds the Telegram bot client from the access token.
func New(cfg *config.BotConfig, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Synchronous dispatch keeps a user's messages in arrival order; the
	// relay relies on that to avoid duplicate session creation.
	b, err := bot.New(cfg.Token, bot.WithNotAsyncHandlers())
	if err != nil {
		return nil, fmt.Errorf("build telegram bot: %w", err)
	}

	return &Runtime{bot: b, cfg: cfg, logger: logger}, nil
}

// RegisterHandlers routes plain text messages to the relay's message
// handler and commands to its command handler. Updates without a text
// message are ignored.
func (rt *Runtime) RegisterHandlers(h Handler) {
	rt.bot.RegisterHandlerMatchFunc(func(u *models.Update) bool {
		return u.Message != nil && u.Message.Text != "" && isCommand(u.Message)
	}, func(ctx context.Context, _ *bot.Bot, u *models.Update) {
		h.HandleCommand(ctx, inboundFromUpdate(u))
	})

	rt.bot.RegisterHandlerMatchFunc(func(u *models.Update) bool {
		return u.Message != nil && u.Message.Text != "" && !isCommand(u.Message)
	}, func(ctx context.Context, _ *bot.Bot, u *models.Update) {
		h.HandleMessage(ctx, inboundFromUpdate(u))
	})
}

// SendMessage sends a plain text message to a chat.
func (rt *Runtime) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := rt.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	return err
}

// SendTyping shows the typing indicator in a chat.
func (rt *Runtime) SendTyping(ctx context.Context, chatID int64) error {
	_, err := rt.bot.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	})
	return err
}

// Run starts the configured update loop and blocks until ctx is done.
func (rt *Runtime) Run(ctx context.Context) error {
	if rt.cfg.Mode == config.ModeWebhook {
		return rt.runWebhook(ctx)
	}

	rt.logger.Info("starting bot in polling mode")
	rt.bot.Start(ctx)
	return nil
}

// runWebhook serves the bot's webhook handler behind a chi router,
// registers the URL with Telegram, and processes pushed updates until ctx
// is done.
func (rt *Runtime) runWebhook(ctx context.Context) error {
	webhookURL := strings.TrimRight(rt.cfg.WebhookURL, "/") + "/" + rt.cfg.WebhookPath

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Post("/"+rt.cfg.WebhookPath, rt.bot.WebhookHandler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", rt.cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("webhook listener started", "addr", srv.Addr, "path", "/"+rt.cfg.WebhookPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if _, err := rt.bot.SetWebhook(ctx, &bot.SetWebhookParams{URL: webhookURL}); err != nil {
		return fmt.Errorf("register webhook with telegram: %w", err)
	}
	rt.logger.Info("starting bot in webhook mode", "url", webhookURL)

	go rt.bot.StartWebhook(ctx)

	select {
	case err := <-errCh:
		return fmt.Errorf("webhook listener: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown webhook listener: %w", err)
	}
	return nil
}

// isCommand mirrors the Bot API convention: a bot_command entity at
// offset 0, with a "/" prefix fallback for clients that omit entities.
func isCommand(m *models.Message) bool {
	for _, e := range m.Entities {
		if e.Type == models.MessageEntityTypeBotCommand && e.Offset == 0 {
			return true
		}
	}
	return strings.HasPrefix(m.Text, "/")
}

// inboundFromUpdate extracts the identity and text the relay needs. Missing
// pieces are left zero; the relay validates and drops incomplete updates.
func inboundFromUpdate(u *models.Update) relay.Inbound {
	var in relay.Inbound
	if u.Message == nil {
		return in
	}
	in.ChatID = u.Message.Chat.ID
	in.Text = u.Message.Text
	if u.Message.From != nil {
		in.UserID = u.Message.From.ID
		in.FirstName = u.Message.From.FirstName
	}
	return in
}
