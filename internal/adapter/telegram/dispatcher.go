package telegram

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Sender is the part of *bot.Bot handlers reply through.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

var _ Sender = (*bot.Bot)(nil)

// HandlerFunc processes a single update.
type HandlerFunc func(ctx context.Context, s Sender, upd *models.Update)

type queued struct {
	ctx context.Context
	upd *models.Update
}

// Dispatcher routes updates to worker goroutines, keeping per-chat order.
type Dispatcher struct {
	sender  Sender
	handler HandlerFunc
	log     *slog.Logger
	chans   []chan queued
	wg      sync.WaitGroup
	once    sync.Once
}

// NewDispatcher starts workers goroutines; updates of one chat always land on the same worker.
func NewDispatcher(s Sender, workers int, h HandlerFunc, log *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{sender: s, handler: h, log: log.With("component", "telegram"), chans: make([]chan queued, workers)}
	for i := range d.chans {
		d.chans[i] = make(chan queued, 100)
		d.wg.Add(1)
		go d.worker(d.chans[i])
	}
	return d
}

// Dispatch queues upd. It blocks while the worker's queue is full and gives
// up when ctx is done.
func (d *Dispatcher) Dispatch(ctx context.Context, upd *models.Update) {
	_, chat := Origin(upd)
	idx := 0
	if chat != 0 {
		idx = int(abs(chat) % int64(len(d.chans)))
	}
	select {
	case d.chans[idx] <- queued{ctx: ctx, upd: upd}:
	case <-ctx.Done():
		d.log.Warn("update dropped", "update_id", upd.ID, "error", ctx.Err())
	}
}

// Close stops accepting work and waits for queued updates to be handled.
// Dispatch must not be called after Close.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		for _, ch := range d.chans {
			close(ch)
		}
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker(in <-chan queued) {
	defer d.wg.Done()
	for item := range in {
		d.handle(item)
	}
}

func (d *Dispatcher) handle(item queued) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panicked", "update_id", item.upd.ID, "panic", r)
		}
	}()
	d.handler(item.ctx, d.sender, item.upd)
}

// Origin returns the user and chat an update came from; zero when unknown.
func Origin(u *models.Update) (userID, chatID int64) {
	switch {
	case u.Message != nil:
		chatID = u.Message.Chat.ID
		if u.Message.From != nil {
			userID = u.Message.From.ID
		}
	case u.CallbackQuery != nil:
		userID = u.CallbackQuery.From.ID
		if m := u.CallbackQuery.Message.Message; m != nil {
			chatID = m.Chat.ID
		}
	}
	return userID, chatID
}

func abs(i int64) int64 {
	if i < 0 {
		return -i
	}
	return i
}
