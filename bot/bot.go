package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"

	"telegram-translator/internal/logging"
)

// AllowedUpdates is the update filter requested from Telegram. The relay only reads channel posts.
var AllowedUpdates = []string{"channel_post"}

const processingTimeout = 30 * time.Second

// EventHandler accepts one channel post.
type EventHandler interface {
	HandleEvent(ctx context.Context, msg telego.Message) error
}

// HistoryRecorder keeps recent posts so albums can be reassembled later.
type HistoryRecorder interface {
	Record(msg telego.Message)
}

// Bot is the intake loop: it reads updates and hands every channel post to the relay without
// waiting for it to be processed.
type Bot struct {
	updatesChan <-chan telego.Update
	handler     EventHandler
	history     HistoryRecorder
	logger      logging.Logger
}

// BotDeps holds the dependencies required by the Bot.
type BotDeps struct {
	UpdatesChan <-chan telego.Update
	Handler     EventHandler
	History     HistoryRecorder // optional
	Logger      logging.Logger
}

// New creates a new Bot instance from its dependencies.
func New(deps BotDeps) (*Bot, error) {
	if deps.UpdatesChan == nil {
		return nil, fmt.Errorf("updates channel cannot be nil")
	}
	if deps.Handler == nil {
		return nil, fmt.Errorf("event handler cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	return &Bot{
		updatesChan: deps.UpdatesChan,
		handler:     deps.Handler,
		history:     deps.History,
		logger:      deps.Logger,
	}, nil
}

// processUpdate routes one update. Panics are recovered so a bad post cannot stop intake.
func (b *Bot) processUpdate(ctx context.Context, update telego.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithField("update_id", update.UpdateID).Errorf("PANIC recovered in processUpdate: %v\n%s", r, debug.Stack())
			sentry.CurrentHub().Recover(r)
			sentry.Flush(2 * time.Second)
		}
	}()

	if update.ChannelPost == nil {
		b.logger.WithField("update_id", update.UpdateID).Debug("Ignoring unhandled update type")
		return
	}
	msg := *update.ChannelPost

	if b.history != nil {
		b.history.Record(msg)
	}

	processingCtx, cancel := context.WithTimeout(ctx, processingTimeout)
	defer cancel()
	if err := b.handler.HandleEvent(processingCtx, msg); err != nil {
		b.logger.WithError(err).WithFields(logging.Fields{
			"chat_id":    msg.Chat.ID,
			"message_id": msg.MessageID,
		}).Warn("Channel post was not accepted")
	}
}

// Start runs the update loop until ctx is done or the updates channel closes, then waits for
// in-flight intake to finish.
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("Listening for channel posts...")

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Context done, stopping update processing...")
			wg.Wait()
			return
		case update, ok := <-b.updatesChan:
			if !ok {
				b.logger.Info("Updates channel closed.")
				wg.Wait()
				return
			}
			wg.Add(1)
			go func(up telego.Update) {
				defer wg.Done()
				b.processUpdate(ctx, up)
			}(update)
		}
	}
}
