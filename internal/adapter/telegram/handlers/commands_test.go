package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redditstudy/internal/study"
)

type fakeSender struct {
	chats []any
	sent  []string
	err   error
}

func (f *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.chats = append(f.chats, p.ChatID)
	f.sent = append(f.sent, p.Text)
	return &models.Message{}, f.err
}

func update(text string) *models.Update {
	return &models.Update{Message: &models.Message{Text: text, Chat: models.Chat{ID: 42}}}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"/status", "status", true},
		{"/Status@redditstudy_bot now", "status", true},
		{"/ping extra", "ping", true},
		{"hello", "", false},
		{"", "", false},
		{"/", "", false},
	}
	for _, tt := range tests {
		got, ok := command(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestCommands_Handle(t *testing.T) {
	progress := study.Progress{StudyID: "s1", Sampled: 3, Snapshots: 9}
	c := New(func() study.Progress { return progress }, nil)

	s := &fakeSender{}
	c.Handle(context.Background(), s, update("/status"))
	c.Handle(context.Background(), s, update("/ping"))
	c.Handle(context.Background(), s, update("/start"))
	c.Handle(context.Background(), s, update("/nope"))
	c.Handle(context.Background(), s, update("just text"))
	c.Handle(context.Background(), s, &models.Update{})

	require.Len(t, s.sent, 4)
	assert.Equal(t, progress.String(), s.sent[0])
	assert.Equal(t, "pong", s.sent[1])
	assert.Contains(t, s.sent[2], "/status")
	assert.Contains(t, s.sent[3], "Неизвестная команда")
	for _, chat := range s.chats {
		assert.Equal(t, int64(42), chat)
	}
}

func TestCommands_SendErrorIsLogged(t *testing.T) {
	c := New(func() study.Progress { return study.Progress{} }, nil)
	s := &fakeSender{err: errors.New("network")}

	assert.NotPanics(t, func() {
		c.Handle(context.Background(), s, update("/status"))
	})
	assert.Equal(t, []string{"No study has run yet."}, s.sent)
}
