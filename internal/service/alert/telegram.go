package alert

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender posts the snapshot with a caption to a Telegram chat.
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSender authenticates against the Telegram Bot API.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	return NewTelegramSenderWithClient(token, tgbotapi.APIEndpoint, chatID, &http.Client{})
}

// NewTelegramSenderWithClient is NewTelegramSender with an explicit endpoint
// format ("<base>/bot%s/%s") and HTTP client.
func NewTelegramSenderWithClient(token, endpoint string, chatID int64, client *http.Client) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}
	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

func (s *TelegramSender) Name() string { return "telegram" }

func (s *TelegramSender) Send(ctx context.Context, a Alert) error {
	var msg tgbotapi.Chattable
	if a.Snapshot != nil {
		jpeg, err := a.Snapshot.EncodeJPEG()
		if err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		photo := tgbotapi.NewPhoto(s.chatID, tgbotapi.FileBytes{Name: "snapshot.jpg", Bytes: jpeg})
		photo.Caption = a.Caption()
		msg = photo
	} else {
		msg = tgbotapi.NewMessage(s.chatID, a.Caption())
	}

	// The bot client has no context support; give up waiting when ctx ends.
	done := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
