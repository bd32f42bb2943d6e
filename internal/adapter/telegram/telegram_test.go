package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redditstudy/internal/shared"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []*bot.SendMessageParams
	errs  []error
	calls int
}

func (f *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.sent = append(f.sent, p)
	return &models.Message{}, nil
}

func fastNotifier(s Sender) *Notifier {
	n := NewNotifier(s, 42, nil)
	n.retry.InitialDelay = time.Millisecond
	n.retry.MaxDelay = time.Millisecond
	return n
}

func TestNotifier_Notify(t *testing.T) {
	s := &fakeSender{}
	n := fastNotifier(s)

	require.NoError(t, n.Notify(context.Background(), "study done"))
	require.Len(t, s.sent, 1)
	assert.Equal(t, int64(42), s.sent[0].ChatID)
	assert.Equal(t, "study done", s.sent[0].Text)
}

func TestNotifier_RetriesTransientErrors(t *testing.T) {
	s := &fakeSender{errs: []error{errors.New("connection reset"), errors.New("timeout")}}
	n := fastNotifier(s)

	require.NoError(t, n.Notify(context.Background(), "hi"))
	assert.Equal(t, 3, s.calls)
	assert.Len(t, s.sent, 1)
}

func TestNotifier_PermanentError(t *testing.T) {
	s := &fakeSender{errs: []error{fmt.Errorf("%w, chat not found", bot.ErrorBadRequest)}}
	n := fastNotifier(s)

	err := n.Notify(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, 1, s.calls)
	assert.True(t, shared.IsDependencyFailure(err))
	assert.ErrorIs(t, err, bot.ErrorBadRequest)
}

func TestNotifier_GivesUp(t *testing.T) {
	boom := errors.New("boom")
	s := &fakeSender{errs: []error{boom, boom, boom, boom}}
	n := fastNotifier(s)

	err := n.Notify(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, 3, s.calls)
	assert.ErrorIs(t, err, boom)
}

func TestNotifier_ClipsLongText(t *testing.T) {
	s := &fakeSender{}
	n := fastNotifier(s)

	require.NoError(t, n.Notify(context.Background(), strings.Repeat("я", MaxMessageLen+10)))
	require.Len(t, s.sent, 1)
	assert.Len(t, []rune(s.sent[0].Text), MaxMessageLen)
	assert.True(t, strings.HasSuffix(s.sent[0].Text, "…"))
}

func TestOrigin(t *testing.T) {
	uid, chat := Origin(&models.Update{Message: &models.Message{From: &models.User{ID: 7}, Chat: models.Chat{ID: -100}}})
	assert.Equal(t, int64(7), uid)
	assert.Equal(t, int64(-100), chat)

	uid, chat = Origin(&models.Update{CallbackQuery: &models.CallbackQuery{From: models.User{ID: 8}}})
	assert.Equal(t, int64(8), uid)
	assert.Zero(t, chat)

	uid, chat = Origin(&models.Update{})
	assert.Zero(t, uid)
	assert.Zero(t, chat)
}

func TestDispatcher_KeepsChatOrder(t *testing.T) {
	var (
		mu  sync.Mutex
		got = map[int64][]string{}
	)
	h := func(_ context.Context, _ Sender, upd *models.Update) {
		if upd.Message.Text == "panic" {
			panic("handler bug")
		}
		mu.Lock()
		got[upd.Message.Chat.ID] = append(got[upd.Message.Chat.ID], upd.Message.Text)
		mu.Unlock()
	}
	d := NewDispatcher(&fakeSender{}, 4, h, nil)

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		for _, chat := range []int64{1, 2, -3} {
			d.Dispatch(ctx, &models.Update{Message: &models.Message{Text: fmt.Sprint(i), Chat: models.Chat{ID: chat}}})
		}
	}
	d.Dispatch(ctx, &models.Update{Message: &models.Message{Text: "panic", Chat: models.Chat{ID: 1}}})
	d.Dispatch(ctx, &models.Update{Message: &models.Message{Text: "after", Chat: models.Chat{ID: 1}}})
	d.Close()

	for _, chat := range []int64{2, -3} {
		require.Len(t, got[chat], 20)
		for i, text := range got[chat] {
			assert.Equal(t, fmt.Sprint(i), text)
		}
	}
	assert.Equal(t, "after", got[1][len(got[1])-1], "worker survives a panicking handler")
}
