// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Run modes for the bot update loop.
const (
	// ModePolling fetches updates via long polling.
	ModePolling = "polling"
	// ModeWebhook receives updates pushed to an HTTP listener.
	ModeWebhook = "webhook"
)

const (
	defaultLocation = "us-central1"
	defaultPort     = 8080
	defaultDBPath   = "./data/bot.db"
)

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token       string
	Mode        string
	WebhookURL  string
	Port        int
	WebhookPath string
	DBPath      string
}

// VertexConfig holds Vertex AI Agent Engine configuration.
type VertexConfig struct {
	ProjectID string
	Location  string
	AgentID   string
}

// LoadBot reads bot configuration from environment variables.
func LoadBot() (*BotConfig, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set; add it to your environment or .env file")
	}

	port, err := getEnvInt("PORT", defaultPort)
	if err != nil {
		return nil, err
	}

	cfg := &BotConfig{
		Token:       token,
		Mode:        strings.ToLower(getEnv("BOT_MODE", ModePolling)),
		WebhookURL:  getEnv("WEBHOOK_URL", ""),
		Port:        port,
		WebhookPath: getEnv("WEBHOOK_PATH", uuid.NewString()),
		DBPath:      getEnv("DB_PATH", defaultDBPath),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bot configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks mode-dependent requirements.
func (c *BotConfig) Validate() error {
	switch c.Mode {
	case ModePolling:
	case ModeWebhook:
		if c.WebhookURL == "" {
			return fmt.Errorf("WEBHOOK_URL is required when BOT_MODE=webhook")
		}
	default:
		return fmt.Errorf("BOT_MODE must be %q or %q, got %q", ModePolling, ModeWebhook, c.Mode)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.WebhookPath == "" {
		return fmt.Errorf("WEBHOOK_PATH cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	return nil
}

// LoadVertex reads Vertex AI configuration from environment variables.
func LoadVertex() (*VertexConfig, error) {
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT not set")
	}

	agentID := os.Getenv("GOOGLE_AGENT_ENGINE")
	if agentID == "" {
		return nil, fmt.Errorf("GOOGLE_AGENT_ENGINE not set")
	}

	return &VertexConfig{
		ProjectID: projectID,
		Location:  getEnv("GOOGLE_CLOUD_LOCATION", defaultLocation),
		AgentID:   agentID,
	}, nil
}

// getEnv treats empty values as unset so a blank line in a .env file does
// not override a default.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return n, nil
}
