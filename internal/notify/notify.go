// Package notify delivers best-effort user notifications for live sales.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"storefront-dashboard/internal/service"
)

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With(zap.String("component", "notify"))}
}

func (n *LogNotifier) Notify(_ context.Context, title, body string) error {
	n.logger.Info(title, zap.String("body", body))
	return nil
}

// TelegramNotifier sends notifications to one chat through the Bot API.
type TelegramNotifier struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewTelegramNotifier connects to the public Bot API.
func NewTelegramNotifier(botToken, chatID string) (*TelegramNotifier, error) {
	return newTelegramNotifier(botToken, chatID, tgbotapi.APIEndpoint, &http.Client{Timeout: 10 * time.Second})
}

func newTelegramNotifier(botToken, chatID, endpoint string, client tgbotapi.HTTPClient) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(botToken, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	return &TelegramNotifier{
		bot:            bot,
		chatID:         id,
		maxRetries:     3,
		retryDelayBase: time.Second,
	}, nil
}

// Notify sends the message, retrying with a linear backoff until ctx is done.
func (n *TelegramNotifier) Notify(ctx context.Context, title, body string) error {
	msg := tgbotapi.NewMessage(n.chatID, FormatMessage(title, body))
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < n.maxRetries; i++ {
		_, err := n.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("telegram notification aborted: %w", ctx.Err())
		case <-time.After(n.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed to send message after %d retries: %w", n.maxRetries, lastErr)
}

// FormatMessage renders a bold title over the body in MarkdownV2.
func FormatMessage(title, body string) string {
	return fmt.Sprintf("🛒 *%s*\n%s", escapeMarkdownV2(title), escapeMarkdownV2(body))
}

func escapeMarkdownV2(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch r {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FromConfig returns the log notifier plus Telegram when enabled.
func FromConfig(cfg service.NotifyConfig, logger *zap.Logger) ([]Notifier, error) {
	notifiers := []Notifier{NewLogNotifier(logger)}

	if cfg.Telegram.Enabled {
		tg, err := NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, tg)
	}
	return notifiers, nil
}
