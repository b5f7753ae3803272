package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	"telegram-translator/internal/logging"
)

const defaultRetryWait = 2 * time.Second

// withRetry paces fn through the send limiter and repeats it while Telegram answers with
// 429 Too Many Requests, honouring the server's retry-after hint. Other errors are returned
// immediately.
func (r *Relay) withRetry(ctx context.Context, method string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.retries; attempt++ {
		r.pace.Take()
		err := fn()
		if err == nil {
			if attempt > 1 {
				r.logger.WithFields(logging.Fields{"method": method, "attempt": attempt}).
					Info("Send succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !isRateLimited(err) {
			return fmt.Errorf("%s failed: %w", method, err)
		}

		wait := r.wait
		if retryAfter, ok := parseRetryAfter(err.Error()); ok {
			wait = time.Duration(retryAfter) * time.Second
		}
		r.logger.WithFields(logging.Fields{
			"method":  method,
			"attempt": attempt,
			"wait":    wait.String(),
		}).Warn("Rate limit hit, waiting before retry")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s cancelled during rate limit wait: %w", method, ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%s: max retries (%d) exceeded: %w", method, r.retries, lastErr)
}

// isRateLimited matches the Bot API flood-control error.
func isRateLimited(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429")
}

// parseRetryAfter extracts the 'retry after N' duration in seconds from a Telegram API error,
// e.g. "telego: sendMediaGroup: api: 429 \"Too Many Requests: retry after 5\"".
func parseRetryAfter(errorString string) (int, bool) {
	idx := strings.LastIndex(errorString, "retry after ")
	if idx < 0 {
		return 0, false
	}
	var retryAfter int
	if _, err := fmt.Sscanf(errorString[idx:], "retry after %d", &retryAfter); err != nil || retryAfter <= 0 {
		return 0, false
	}
	return retryAfter, true
}
