package notification

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramConfig configures the Telegram notifier.
type TelegramConfig struct {
	BotToken string
	ChatID   int64
	Endpoint string // defaults to tgbotapi.APIEndpoint
	Timeout  time.Duration
}

// TelegramNotifier sends alerts through the Bot API.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	log    *slog.Logger
}

// NewTelegramNotifier authorises the bot (getMe) and returns a notifier.
func NewTelegramNotifier(cfg TelegramConfig, log *slog.Logger) (*TelegramNotifier, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, cfg.Endpoint, &http.Client{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram: authorise bot: %w", err)
	}
	log = log.With("component", "telegram")
	log.Info("[telegram] authorised", "bot", api.Self.UserName)
	return &TelegramNotifier{api: api, chatID: cfg.ChatID, log: log}, nil
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	emoji := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		emoji = "⚠️"
	case AlertCritical:
		emoji = "🚨"
	}

	text := fmt.Sprintf("%s *%s*\n\n%s", emoji,
		tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, alert.Title),
		tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, alert.Message))

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	t.log.Debug("sent alert", "title", alert.Title)
	return nil
}
