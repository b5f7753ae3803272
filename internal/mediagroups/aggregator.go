// Package mediagroups resolves the full set of messages that make up one channel post.
package mediagroups

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mymmrac/telego"

	"telegram-translator/internal/logging"
)

const (
	// DefaultSettleDelay is how long to wait for album siblings before resolving a group.
	DefaultSettleDelay = 2 * time.Second
	// DefaultWindow is the number of message ids looked up on each side of the trigger.
	DefaultWindow = 10
)

// MessageFetcher returns the messages of a chat whose ids fall in [fromID, toID).
type MessageFetcher interface {
	FetchMessages(ctx context.Context, chatID int64, fromID, toID int) ([]telego.Message, error)
}

// Options tunes group resolution.
type Options struct {
	Window      int
	SettleDelay time.Duration
}

// Aggregator gathers the messages sharing the trigger's media group id.
type Aggregator struct {
	fetcher MessageFetcher
	window  int
	settle  time.Duration
	logger  logging.Logger
}

// NewAggregator creates an aggregator. Zero options fall back to the defaults; a negative
// settle delay disables waiting.
func NewAggregator(fetcher MessageFetcher, opts Options, logger logging.Logger) (*Aggregator, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("message fetcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.SettleDelay == 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	return &Aggregator{fetcher: fetcher, window: opts.Window, settle: opts.SettleDelay, logger: logger}, nil
}

// Resolve returns every message of the trigger's post ordered by message id. Ungrouped
// messages resolve to themselves. If the lookup fails the trigger alone is returned.
func (a *Aggregator) Resolve(ctx context.Context, trigger telego.Message) []telego.Message {
	if trigger.MediaGroupID == "" {
		return []telego.Message{trigger}
	}
	log := a.logger.WithFields(logging.Fields{
		"chat_id": trigger.Chat.ID,
		"group":   trigger.MediaGroupID,
	})

	if a.settle > 0 {
		timer := time.NewTimer(a.settle)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	fetched, err := a.fetcher.FetchMessages(ctx, trigger.Chat.ID, trigger.MessageID-a.window, trigger.MessageID+a.window)
	if err != nil {
		log.WithError(err).Error("Could not fetch message group, continuing with the triggering message")
		return []telego.Message{trigger}
	}

	byID := map[int]telego.Message{trigger.MessageID: trigger}
	for _, msg := range fetched {
		if msg.MediaGroupID == trigger.MediaGroupID {
			byID[msg.MessageID] = msg
		}
	}

	group := make([]telego.Message, 0, len(byID))
	for _, msg := range byID {
		group = append(group, msg)
	}
	sort.Slice(group, func(i, j int) bool {
		return group[i].MessageID < group[j].MessageID
	})

	log.WithField("count", len(group)).Debug("Resolved message group")
	return group
}
