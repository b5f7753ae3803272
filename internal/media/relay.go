// Package media downloads source attachments to scratch storage and republishes them.
package media

import (
	"fmt"
	"os"
	"time"

	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/ratelimit"

	"telegram-translator/internal/logging"
	"telegram-translator/pkg/telegoapi"
)

const (
	// DefaultDir is the scratch directory for downloaded media.
	DefaultDir = "media_cache"
	// DefaultSendsPerSecond paces outbound Bot API calls.
	DefaultSendsPerSecond = 20
	// DefaultMaxSendRetries bounds retries of a send rejected with 429.
	DefaultMaxSendRetries = 3
)

// Options configures a Relay.
type Options struct {
	Dir            string
	SendsPerSecond int
	MaxSendRetries int
	// RetryWait is used when a 429 response carries no retry-after hint.
	RetryWait time.Duration
}

// Relay moves media between source posts and destination channels. Every file it downloads is
// owned by the caller of Fetch until handed back to Cleanup.
type Relay struct {
	bot      telegoapi.BotAPI
	dir      string
	pace     ratelimit.Limiter
	retries  int
	wait     time.Duration
	download func(url string) ([]byte, error)
	logger   logging.Logger
}

// NewRelay creates the scratch directory and returns a relay bound to bot.
func NewRelay(bot telegoapi.BotAPI, opts Options, logger logging.Logger) (*Relay, error) {
	if bot == nil {
		return nil, fmt.Errorf("bot cannot be nil")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Dir == "" {
		opts.Dir = DefaultDir
	}
	if opts.SendsPerSecond <= 0 {
		opts.SendsPerSecond = DefaultSendsPerSecond
	}
	if opts.MaxSendRetries <= 0 {
		opts.MaxSendRetries = DefaultMaxSendRetries
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = defaultRetryWait
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory %s: %w", opts.Dir, err)
	}
	return &Relay{
		bot:      bot,
		dir:      opts.Dir,
		pace:     ratelimit.New(opts.SendsPerSecond),
		retries:  opts.MaxSendRetries,
		wait:     opts.RetryWait,
		download: tu.DownloadFile,
		logger:   logger,
	}, nil
}

// Dir returns the scratch directory.
func (r *Relay) Dir() string {
	return r.dir
}

// Cleanup removes downloaded files. Failures are logged only.
func (r *Relay) Cleanup(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			r.logger.WithError(err).WithField("path", p).Warn("Failed to remove media file")
		}
	}
}
