package mediagroups

import (
	"context"
	"sync"
	"time"

	"github.com/mymmrac/telego"
)

// DefaultHistoryTTL bounds how long received posts stay available for group lookups.
const DefaultHistoryTTL = 10 * time.Minute

type historyEntry struct {
	msg telego.Message
	at  time.Time
}

// History remembers recently received channel posts per chat. The Bot API has no call to read
// channel history, so the update loop records every post here and the aggregator reads it back.
type History struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	chats map[int64]map[int]historyEntry
}

// NewHistory creates an empty history. A non-positive ttl uses DefaultHistoryTTL.
func NewHistory(ttl time.Duration) *History {
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &History{
		ttl:   ttl,
		now:   time.Now,
		chats: make(map[int64]map[int]historyEntry),
	}
}

// Record stores msg, replacing an earlier copy with the same id.
func (h *History) Record(msg telego.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	chat, ok := h.chats[msg.Chat.ID]
	if !ok {
		chat = make(map[int]historyEntry)
		h.chats[msg.Chat.ID] = chat
	}
	chat[msg.MessageID] = historyEntry{msg: msg, at: h.now()}
}

// FetchMessages implements MessageFetcher over the recorded posts.
func (h *History) FetchMessages(ctx context.Context, chatID int64, fromID, toID int) ([]telego.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []telego.Message
	for id, entry := range h.chats[chatID] {
		if id >= fromID && id < toID {
			out = append(out, entry.msg)
		}
	}
	return out, nil
}

// Sweep drops entries older than the TTL and returns how many were removed.
func (h *History) Sweep() int {
	cutoff := h.now().Add(-h.ttl)
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for chatID, chat := range h.chats {
		for id, entry := range chat {
			if entry.at.Before(cutoff) {
				delete(chat, id)
				removed++
			}
		}
		if len(chat) == 0 {
			delete(h.chats, chatID)
		}
	}
	return removed
}

// Run sweeps the history every interval until ctx is done.
func (h *History) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = h.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}
