package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"redditstudy/internal/adapter/telegram"
)

// RateLimiter ограничивает частоту запросов каждого пользователя.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	every    time.Duration
	burst    int
	now      func() time.Time
}

// NewRateLimiter разрешает burst запросов подряд и далее один раз в every.
func NewRateLimiter(every time.Duration, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[int64]*rate.Limiter),
		every:    every,
		burst:    burst,
		now:      time.Now,
	}
}

// Allow возвращает false, если пользователь превысил лимит.
func (r *RateLimiter) Allow(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(r.every), r.burst)
		r.limiters[userID] = l
	}
	return l.AllowN(r.now(), 1)
}

// Middleware отвечает "слишком часто" вместо вызова next при превышении лимита.
func (r *RateLimiter) Middleware(next telegram.HandlerFunc) telegram.HandlerFunc {
	return func(ctx context.Context, s telegram.Sender, upd *models.Update) {
		uid, chat := telegram.Origin(upd)
		if uid != 0 && !r.Allow(uid) {
			if chat != 0 {
				_, _ = s.SendMessage(ctx, &bot.SendMessageParams{ChatID: chat, Text: "слишком часто"})
			}
			return
		}
		next(ctx, s, upd)
	}
}
