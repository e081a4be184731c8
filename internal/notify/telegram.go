// internal/notify/telegram.go
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSink posts batch-completion notices to a Telegram chat. Outbound
// only; the daemon never polls for updates.
type TelegramSink struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSink creates a sink for the given bot token and chat.
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &TelegramSink{bot: bot, chatID: chatID}, nil
}

// Broadcast formats the payload as a short text message and sends it.
func (t *TelegramSink) Broadcast(_ context.Context, channel string, payload map[string]any) error {
	msg := tgbotapi.NewMessage(t.chatID, formatPayload(channel, payload))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func formatPayload(channel string, payload map[string]any) string {
	if payload["type"] == "batch_processed" {
		return fmt.Sprintf("[%s] batch %v processed (%v events)",
			channel, payload["batchId"], payload["eventCount"])
	}
	return fmt.Sprintf("[%s] %v", channel, payload)
}
