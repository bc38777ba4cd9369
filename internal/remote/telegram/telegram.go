package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"markettraveler/internal/event"
	"markettraveler/internal/remote"
)

type Bot struct {
	bot      *tgbotapi.BotAPI
	chatID   int64
	messages chan string
}

func NewBot(token string, chatID int64) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("error creating Telegram bot: %w", err)
	}

	return &Bot{
		bot:      api,
		chatID:   chatID,
		messages: make(chan string, 64),
	}, nil
}

// Start forwards queued messages until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-b.messages:
			_, _ = b.bot.Send(tgbotapi.NewMessage(b.chatID, msg))
		}
	}
}

// Handle queues a notification for the event, dropping it when the queue is
// full.
func (b *Bot) Handle(e event.Event) {
	msg := remote.Format(e)
	if msg == "" {
		return
	}
	select {
	case b.messages <- msg:
	default:
	}
}
