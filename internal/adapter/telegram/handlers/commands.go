// Package handlers отвечает на команды бота.
package handlers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"redditstudy/internal/adapter/telegram"
	"redditstudy/internal/study"
)

const helpText = "Команды:\n/status - прогресс исследования\n/ping - проверка связи"

// ProgressFunc возвращает текущий прогресс исследования.
type ProgressFunc func() study.Progress

// Commands разбирает команды из сообщений и отвечает на них.
type Commands struct {
	progress ProgressFunc
	log      *slog.Logger
}

// New создает обработчик команд.
func New(progress ProgressFunc, log *slog.Logger) *Commands {
	if log == nil {
		log = slog.Default()
	}
	return &Commands{progress: progress, log: log.With("component", "telegram")}
}

// Handle - telegram.HandlerFunc. Сообщения без команды игнорируются.
func (c *Commands) Handle(ctx context.Context, s telegram.Sender, upd *models.Update) {
	msg := upd.Message
	if msg == nil {
		return
	}
	cmd, ok := command(msg.Text)
	if !ok {
		return
	}
	switch cmd {
	case "start", "help":
		c.reply(ctx, s, msg, "Бот следит за исследованиями Reddit.\n"+helpText)
	case "ping":
		c.reply(ctx, s, msg, "pong")
	case "status":
		c.reply(ctx, s, msg, c.progress().String())
	default:
		c.reply(ctx, s, msg, "Неизвестная команда.\n"+helpText)
	}
}

func (c *Commands) reply(ctx context.Context, s telegram.Sender, msg *models.Message, text string) {
	_, err := s.SendMessage(ctx, &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: text})
	if err != nil {
		c.log.Warn("send reply failed", "chat_id", msg.Chat.ID, "error", err)
	}
}

// command извлекает имя команды: "/status@my_bot args" -> "status".
func command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.TrimPrefix(strings.Fields(text)[0], "/")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name), name != ""
}
