package middleware

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"redditstudy/internal/adapter/telegram"
)

// ACL пропускает только пользователей из списка. Пустой список пропускает всех.
type ACL struct{ allowed map[int64]struct{} }

// NewACL создаёт ACL по списку ID.
func NewACL(ids []int64) *ACL {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return &ACL{allowed: m}
}

// IsAllowed сообщает, имеет ли пользователь доступ.
func (a *ACL) IsAllowed(id int64) bool {
	if len(a.allowed) == 0 {
		return true
	}
	_, ok := a.allowed[id]
	return ok
}

// Middleware отвечает отказом неразрешённым пользователям. Обновления без
// отправителя (посты каналов) тоже отклоняются, если список задан.
func (a *ACL) Middleware(next telegram.HandlerFunc) telegram.HandlerFunc {
	return func(ctx context.Context, s telegram.Sender, upd *models.Update) {
		uid, chat := telegram.Origin(upd)
		if a.IsAllowed(uid) {
			next(ctx, s, upd)
			return
		}
		if chat != 0 && uid != 0 {
			_, _ = s.SendMessage(ctx, &bot.SendMessageParams{ChatID: chat, Text: "доступ запрещен"})
		}
	}
}
