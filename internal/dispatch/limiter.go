package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"telegram-translator/internal/logging"
)

// DefaultCooldown is the pause enforced after every translation attempt.
const DefaultCooldown = 60 * time.Second

// Limiter serializes translation calls process-wide. It holds a single permit: one call runs at
// a time, and the next caller may only start once the cool-down following the previous call's
// completion has elapsed. The budget is shared by every source channel.
type Limiter struct {
	permit   *semaphore.Weighted
	cooldown time.Duration
	logger   logging.Logger

	mu        sync.Mutex
	notBefore time.Time
}

// NewLimiter creates a limiter with the given cool-down. A non-positive cool-down disables the pause.
func NewLimiter(cooldown time.Duration, logger logging.Logger) *Limiter {
	if logger == nil {
		logger = logging.Discard()
	}
	if cooldown < 0 {
		cooldown = 0
	}
	return &Limiter{
		permit:   semaphore.NewWeighted(1),
		cooldown: cooldown,
		logger:   logger,
	}
}

// Cooldown reports the configured pause.
func (l *Limiter) Cooldown() time.Duration {
	return l.cooldown
}

// Do runs fn while holding the permit. The permit is released unconditionally once fn returns
// (or panics), and the cool-down starts from that moment.
func (l *Limiter) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	if err := l.permit.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire translation permit: %w", err)
	}
	defer l.permit.Release(1)

	if wait := l.untilReady(); wait > 0 {
		l.logger.WithFields(logging.Fields{"job": label, "wait": wait.String()}).
			Info("Waiting for translation cool-down")
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("cool-down wait: %w", ctx.Err())
		case <-timer.C:
		}
	}

	l.logger.WithField("job", label).Info("Acquired translation permit")
	defer l.markDone()
	return fn(ctx)
}

func (l *Limiter) untilReady() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Until(l.notBefore)
}

func (l *Limiter) markDone() {
	l.mu.Lock()
	l.notBefore = time.Now().Add(l.cooldown)
	l.mu.Unlock()
	if l.cooldown > 0 {
		l.logger.Debugf("Next translation allowed in %s", l.cooldown)
	}
}
