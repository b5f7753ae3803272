package database

import (
	"context"
	"time"

	"telegram-translator/internal/database/models"
)

// Ledger is the durable record of posts already processed.
type Ledger interface {
	// Exists reports whether a record for (channel, postID) is present.
	Exists(ctx context.Context, channel, postID string) (bool, error)
	// Insert records (channel, postID). Inserting an existing key is a no-op, not an error.
	Insert(ctx context.Context, channel, postID string, at time.Time) error
	// DeleteOlderThan removes records processed before cutoff and returns how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RelayLogger defines the interface for logging relayed posts.
type RelayLogger interface {
	// LogRelayedPost records the outcome of a delivery attempt to a destination channel.
	LogRelayedPost(ctx context.Context, entry models.RelayLog) error
}

// Store is a storage backend serving both the ledger and the relay log.
type Store interface {
	Ledger
	RelayLogger
	Close(ctx context.Context) error
}
