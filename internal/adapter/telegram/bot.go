package telegram

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// BotOptions configures NewBot.
type BotOptions struct {
	Token         string
	WebhookSecret string
	Handler       HandlerFunc
	Workers       int
	Logger        *slog.Logger
	// Extra is appended to the bot options, e.g. bot.WithServerURL in tests.
	Extra []bot.Option
}

// NewBot creates a bot whose updates go through a Dispatcher to opts.Handler.
// The caller closes the dispatcher after the bot has stopped.
func NewBot(opts BotOptions) (*bot.Bot, *Dispatcher, error) {
	var disp *Dispatcher
	bopts := []bot.Option{
		bot.WithDefaultHandler(func(ctx context.Context, _ *bot.Bot, upd *models.Update) {
			disp.Dispatch(ctx, upd)
		}),
		bot.WithAllowedUpdates([]string{"message", "callback_query"}),
	}
	if opts.WebhookSecret != "" {
		bopts = append(bopts, bot.WithWebhookSecretToken(opts.WebhookSecret))
	}
	bopts = append(bopts, opts.Extra...)

	b, err := bot.New(opts.Token, bopts...)
	if err != nil {
		return nil, nil, err
	}
	workers := opts.Workers
	if workers == 0 {
		workers = 4
	}
	disp = NewDispatcher(b, workers, opts.Handler, opts.Logger)
	return b, disp, nil
}
