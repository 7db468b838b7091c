package notify

import (
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier pushes operational alerts (negative stock, vaccinations due,
// low balances) to the farm admin chat. A nil *Telegram is a valid no-op
// notifier so callers don't have to branch on configuration.
type Notifier interface {
	Alert(text string)
}

type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	log    *slog.Logger
}

// NewTelegram returns nil (no-op) when token is empty.
func NewTelegram(token string, chatID int64, log *slog.Logger) (*Telegram, error) {
	if token == "" {
		return nil, nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{api: api, chatID: chatID, log: log}, nil
}

func (t *Telegram) Alert(text string) {
	if t == nil {
		return
	}
	if _, err := t.api.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		t.log.Error("telegram alert failed", "err", err)
	}
}
