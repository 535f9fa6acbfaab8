// Telegram relay bot for a Vertex AI Agent Engine agent.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"telegram-agent-bot/internal/agent"
	"telegram-agent-bot/internal/config"
	"telegram-agent-bot/internal/relay"
	"telegram-agent-bot/internal/store"
	"telegram-agent-bot/internal/telegram"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	botCfg, err := config.LoadBot()
	if err != nil {
		slog.Error("Failed to load bot configuration", "error", err)
		os.Exit(1)
	}

	vertexCfg, err := config.LoadVertex()
	if err != nil {
		slog.Error("Failed to load Vertex AI configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Resolve the agent engine up front so bad credentials or a wrong
	// engine ID stop the process before it serves any traffic.
	client, err := agent.NewClient(ctx, agent.ClientConfig{
		ProjectID: vertexCfg.ProjectID,
		Location:  vertexCfg.Location,
		AgentID:   vertexCfg.AgentID,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize agent engine", "error", err)
		os.Exit(1)
	}

	manager := agent.NewManager()
	if err := manager.Initialize(client); err != nil {
		slog.Error("Failed to initialize agent manager", "error", err)
		os.Exit(1)
	}

	repo, err := store.NewSQLite(botCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Session store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Session store ready", "path", botCfg.DBPath)

	runtime, err := telegram.New(botCfg, logger)
	if err != nil {
		slog.Error("Failed to build telegram bot", "error", err)
		os.Exit(1)
	}

	r := relay.New(manager, runtime, repo, logger)
	runtime.RegisterHandlers(r)

	slog.Info("Bot starting", "mode", botCfg.Mode)
	if err := runtime.Run(ctx); err != nil {
		slog.Error("Bot stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Bot stopped")
}
