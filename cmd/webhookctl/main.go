// Webhookctl manages the Telegram webhook registration for the bot:
// inspect the current webhook, point it at a new URL, or remove it to
// switch back to polling.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/joho/godotenv"
)

// Suffix appended to webhook URLs that are set without a path.
const webhookSuffix = "/webhook"

const requestTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN not found in environment or .env file")
	}

	// SkipGetMe keeps construction offline; every menu action does its
	// own network call.
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return fmt.Errorf("build telegram client: %w", err)
	}

	stdin := bufio.NewScanner(os.Stdin)
	for {
		fmt.Println()
		fmt.Println("Telegram Bot Webhook Manager")
		fmt.Println("1. Get webhook info")
		fmt.Println("2. Set webhook URL")
		fmt.Println("3. Delete webhook (switch to polling)")
		fmt.Println("4. ngrok setup instructions")
		fmt.Println("5. Exit")
		fmt.Print("\nSelect option (1-5): ")

		choice, ok := readLine(stdin)
		if !ok {
			return nil
		}

		var err error
		switch choice {
		case "1":
			err = showWebhookInfo(b)
		case "2":
			err = setWebhook(b, stdin)
		case "3":
			err = deleteWebhook(b, stdin)
		case "4":
			printNgrokHelp()
		case "5":
			return nil
		default:
			fmt.Println("Invalid option. Please select 1-5.")
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
}

func showWebhookInfo(b *bot.Bot) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	info, err := b.GetWebhookInfo(ctx)
	if err != nil {
		return fmt.Errorf("get webhook info: %w", err)
	}

	fmt.Println("\nCurrent Webhook Status")
	fmt.Println(strings.Repeat("=", 60))
	url := info.URL
	if url == "" {
		url = "Not set"
	}
	fmt.Printf("URL: %s\n", url)
	fmt.Printf("Has Custom Certificate: %v\n", info.HasCustomCertificate)
	fmt.Printf("Pending Update Count: %d\n", info.PendingUpdateCount)

	if info.LastErrorDate != 0 {
		fmt.Printf("Last Error Date: %s\n", time.Unix(int64(info.LastErrorDate), 0).Format(time.RFC3339))
		fmt.Printf("Last Error Message: %s\n", info.LastErrorMessage)
	}
	if info.MaxConnections != 0 {
		fmt.Printf("Max Connections: %d\n", info.MaxConnections)
	}
	if len(info.AllowedUpdates) > 0 {
		fmt.Printf("Allowed Updates: %s\n", strings.Join(info.AllowedUpdates, ", "))
	}
	fmt.Println(strings.Repeat("=", 60))
	return nil
}

func setWebhook(b *bot.Bot, stdin *bufio.Scanner) error {
	fmt.Print("\nEnter webhook URL (with https://): ")
	url, ok := readLine(stdin)
	if !ok {
		return nil
	}

	if !strings.HasPrefix(url, "https://") {
		fmt.Println("Webhook URL must start with https://")
		return nil
	}
	if !strings.HasSuffix(url, webhookSuffix) {
		url += webhookSuffix
	}

	fmt.Printf("Setting webhook to: %s\n", url)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if _, err := b.SetWebhook(ctx, &bot.SetWebhookParams{URL: url}); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	fmt.Println("Webhook set successfully.")
	return nil
}

func deleteWebhook(b *bot.Bot, stdin *bufio.Scanner) error {
	fmt.Print("\nThis will delete the webhook. Continue? (yes/no): ")
	confirm, ok := readLine(stdin)
	if !ok {
		return nil
	}
	switch strings.ToLower(confirm) {
	case "yes", "y":
	default:
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	fmt.Println("Webhook deleted. The bot is now in polling mode.")
	return nil
}

func printNgrokHelp() {
	fmt.Println("\nngrok setup")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("1. Install ngrok")
	fmt.Println("2. Start the bot with BOT_MODE=webhook on your chosen PORT")
	fmt.Println("3. In another terminal: ngrok http <PORT>")
	fmt.Println("4. Copy the HTTPS URL from ngrok (e.g. https://abc123.ngrok.io)")
	fmt.Println("5. Use option 2 to set that URL as the webhook")
	fmt.Println(strings.Repeat("=", 60))
}

func readLine(stdin *bufio.Scanner) (string, bool) {
	if !stdin.Scan() {
		return "", false
	}
	return strings.TrimSpace(stdin.Text()), true
}
