// Package dedup keeps track of posts that were already relayed.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"telegram-translator/internal/database"
	"telegram-translator/internal/logging"
)

// DefaultRetentionDays is how long ledger records are kept before pruning.
const DefaultRetentionDays = 7

// PostKey identifies one logical post within a source channel.
type PostKey struct {
	Source string
	PostID string
}

func (k PostKey) String() string {
	return k.Source + "/" + k.PostID
}

// Store is a two-tier record of processed posts: an in-memory set for keys seen in this run,
// written through to a durable ledger that survives restarts.
type Store struct {
	ledger database.Ledger
	logger logging.Logger
	now    func() time.Time

	mu   sync.Mutex
	seen map[PostKey]time.Time
}

// NewStore creates a Store backed by ledger.
func NewStore(ledger database.Ledger, logger logging.Logger) (*Store, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{
		ledger: ledger,
		logger: logger,
		now:    time.Now,
		seen:   make(map[PostKey]time.Time),
	}, nil
}

// IsProcessed reports whether key was marked in this run or recorded in the ledger.
func (s *Store) IsProcessed(ctx context.Context, key PostKey) (bool, error) {
	s.mu.Lock()
	_, ok := s.seen[key]
	s.mu.Unlock()
	if ok {
		return true, nil
	}

	exists, err := s.ledger.Exists(ctx, key.Source, key.PostID)
	if err != nil {
		return false, err
	}
	if exists {
		s.remember(key)
	}
	return exists, nil
}

// MarkProcessed records key. Marking an already processed key is a no-op.
func (s *Store) MarkProcessed(ctx context.Context, key PostKey) error {
	at := s.remember(key)
	return s.ledger.Insert(ctx, key.Source, key.PostID, at)
}

// Claim marks key as processed unless it already was, and reports whether this caller won it.
// Album siblings arriving together race on the same key; exactly one of them gets true.
func (s *Store) Claim(ctx context.Context, key PostKey) (bool, error) {
	s.mu.Lock()
	if _, ok := s.seen[key]; ok {
		s.mu.Unlock()
		return false, nil
	}
	// Reserve the key before the ledger round trip so concurrent claims fail fast.
	at := s.now()
	s.seen[key] = at
	s.mu.Unlock()

	exists, err := s.ledger.Exists(ctx, key.Source, key.PostID)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger for %s: %w", key, err)
	}
	if exists {
		return false, nil
	}

	if err := s.ledger.Insert(ctx, key.Source, key.PostID, at); err != nil {
		s.logger.WithError(err).WithField("post", key.String()).
			Warn("Failed to persist processed post, continuing with in-memory record")
		sentry.CaptureException(fmt.Errorf("failed to persist processed post %s: %w", key, err))
	}
	return true, nil
}

// Prune removes records older than retentionDays from the ledger and from memory. Failures are
// logged and reported, never returned.
func (s *Store) Prune(ctx context.Context, retentionDays int) int64 {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := s.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	s.mu.Lock()
	for key, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, key)
		}
	}
	s.mu.Unlock()

	removed, err := s.ledger.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Failed to prune processed posts")
		sentry.CaptureException(fmt.Errorf("failed to prune processed posts: %w", err))
		return 0
	}
	s.logger.WithFields(logging.Fields{
		"removed":        removed,
		"retention_days": retentionDays,
	}).Info("Pruned processed posts")
	return removed
}

func (s *Store) remember(key PostKey) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at, ok := s.seen[key]; ok {
		return at
	}
	at := s.now()
	s.seen[key] = at
	return at
}
