// Package notify pings the operator over Telegram when a long-running import
// finishes while nobody is watching the console.
package notify

import (
	"context"
	"fmt"

	"github.com/PaulSonOfLars/gotgbot/v2"
)

type Telegram struct {
	bot    *gotgbot.Bot
	chatID int64
}

func NewTelegram(botToken string, chatID int64) (*Telegram, error) {
	bot, err := gotgbot.NewBot(botToken, nil)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Notify(ctx context.Context, text string) error {
	if _, err := t.bot.SendMessageWithContext(ctx, t.chatID, text, &gotgbot.SendMessageOpts{}); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}
