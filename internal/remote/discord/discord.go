package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"markettraveler/internal/event"
	"markettraveler/internal/remote"
)

type Bot struct {
	session   *discordgo.Session
	channelID string
	messages  chan string
}

func NewBot(token, channelID string) (*Bot, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}

	return &Bot{
		session:   dg,
		channelID: channelID,
		messages:  make(chan string, 64),
	}, nil
}

// Start opens the session and forwards queued messages until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("error opening Discord connection: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return b.session.Close()
		case msg := <-b.messages:
			_, _ = b.session.ChannelMessageSend(b.channelID, msg)
		}
	}
}

// Handle queues a notification for the event. Bus handlers must not block,
// so when the queue is full the event is dropped.
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
