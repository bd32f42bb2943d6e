package telegram

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"

	"redditstudy/internal/shared"
	"redditstudy/internal/study"
	"redditstudy/pkg/retry"
)

// MaxMessageLen is Telegram's limit for a message text, in characters.
const MaxMessageLen = 4096

// Notifier sends study lifecycle messages to one chat.
type Notifier struct {
	sender Sender
	chatID int64
	retry  retry.Config
	log    *slog.Logger
}

var _ study.Notifier = (*Notifier)(nil)

// NewNotifier creates a Notifier. Sends are retried three times with backoff.
func NewNotifier(s Sender, chatID int64, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "telegram", "chat_id", chatID)
	return &Notifier{
		sender: s,
		chatID: chatID,
		retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2,
			Jitter:       retry.JitterEqual,
			NextDelay: func(_ int, err error) (time.Duration, bool) {
				var tooMany *bot.TooManyRequestsError
				if errors.As(err, &tooMany) && tooMany.RetryAfter > 0 {
					return time.Duration(tooMany.RetryAfter) * time.Second, true
				}
				return 0, true
			},
			OnRetry: func(attempt int, err error, next time.Duration) {
				log.Warn("send failed, retrying", "attempt", attempt, "next", next, "error", err)
			},
		},
		log: log,
	}
}

// Notify sends text, truncated to MaxMessageLen.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	params := &bot.SendMessageParams{ChatID: n.chatID, Text: clip(text, MaxMessageLen)}
	err := retry.DoWithRetryable(ctx, n.retry, func(ctx context.Context) error {
		_, err := n.sender.SendMessage(ctx, params)
		return err
	}, retryableSend)
	if err != nil {
		return shared.MarkKind(shared.Wrap(err, "telegram: notify"), shared.KindDependencyFailure)
	}
	return nil
}

// retryableSend gives up on cancellation and on errors Telegram will repeat
// (bad chat id, bot blocked, malformed request).
func retryableSend(err error) bool {
	if shared.IsCanceled(err) {
		return false
	}
	return !errors.Is(err, bot.ErrorBadRequest) &&
		!errors.Is(err, bot.ErrorForbidden) &&
		!errors.Is(err, bot.ErrorUnauthorized) &&
		!errors.Is(err, bot.ErrorNotFound)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
