package notify

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram/bot"
	"gitlab.com/billit/billit-api/internal/models"
	"gitlab.com/billit/billit-api/internal/notify/mocks"
)

// TelegramAPI is an alias to the interface defined in the mocks package.
type TelegramAPI = mocks.TelegramAPI

// Compile-time check that the real bot satisfies the interface.
var _ TelegramAPI = (*tgbot.Bot)(nil)

// TelegramDeliverer sends notifications to the user's Telegram chat.
type TelegramDeliverer struct {
	api TelegramAPI
}

// NewTelegramDeliverer creates a deliverer over a bot client.
func NewTelegramDeliverer(api TelegramAPI) *TelegramDeliverer {
	return &TelegramDeliverer{api: api}
}

// NewTelegramBot creates the Telegram client for token. The bot only sends;
// no update polling is started.
func NewTelegramBot(token string) (*tgbot.Bot, error) {
	b, err := tgbot.New(token, tgbot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return b, nil
}

// Name implements Deliverer.
func (d *TelegramDeliverer) Name() string { return "telegram" }

// Deliver implements Deliverer. Profiles without a chat are skipped.
func (d *TelegramDeliverer) Deliver(ctx context.Context, p *models.Profile, n *models.Notification) error {
	if p.TelegramChatID == nil {
		return nil
	}
	_, err := d.api.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: *p.TelegramChatID,
		Text:   formatText(n),
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func formatText(n *models.Notification) string {
	if n.Message == "" {
		return n.Title
	}
	return n.Title + "\n\n" + n.Message
}
