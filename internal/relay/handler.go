// Package relay wires intake, deduplication, translation and delivery of channel posts.
package relay

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/mymmrac/telego"

	"telegram-translator/config"
	"telegram-translator/internal/dedup"
	"telegram-translator/internal/logging"
)

// Claimer atomically marks a post as processed and reports whether the caller won it.
type Claimer interface {
	Claim(ctx context.Context, key dedup.PostKey) (bool, error)
}

// Queue hands claimed posts to the pipeline without blocking intake.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// HandlerDeps contains the dependencies for Handler.
type HandlerDeps struct {
	Mappings config.ChannelMappings
	Dedup    Claimer
	Queue    Queue
	Metrics  *Metrics
	Logger   logging.Logger
}

// Handler is the intake side of the relay: it filters unmapped chats, drops duplicates and
// enqueues new posts.
type Handler struct {
	mappings config.ChannelMappings
	dedup    Claimer
	queue    Queue
	metrics  *Metrics
	logger   logging.Logger
	now      func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(deps HandlerDeps) (*Handler, error) {
	if len(deps.Mappings) == 0 {
		return nil, fmt.Errorf("channel mappings cannot be empty")
	}
	if deps.Dedup == nil {
		return nil, fmt.Errorf("dedup store cannot be nil")
	}
	if deps.Queue == nil {
		return nil, fmt.Errorf("queue cannot be nil")
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	return &Handler{
		mappings: deps.Mappings,
		dedup:    deps.Dedup,
		queue:    deps.Queue,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      time.Now,
	}, nil
}

// resolve maps a chat onto its configured source name and destination. Chats may be configured
// either by username or by numeric id.
func (h *Handler) resolve(chat telego.Chat) (source, dest string, ok bool) {
	source = SourceOf(chat)
	if dest, ok = h.mappings.Destination(source); ok {
		return source, dest, true
	}
	id := strconv.FormatInt(chat.ID, 10)
	if dest, ok = h.mappings.Destination(id); ok {
		return id, dest, true
	}
	return "", "", false
}

// HandleEvent processes one incoming channel post.
func (h *Handler) HandleEvent(ctx context.Context, msg telego.Message) error {
	source, dest, ok := h.resolve(msg.Chat)
	if !ok {
		h.logger.WithField("chat_id", msg.Chat.ID).Debug("Ignoring post from unmapped chat")
		return nil
	}

	key := dedup.PostKey{Source: source, PostID: PostIDOf(msg)}
	log := h.logger.WithFields(logging.Fields{"source": source, "post": key.PostID})

	claimed, err := h.dedup.Claim(ctx, key)
	if err != nil {
		log.WithError(err).Error("Dedup check failed, dropping post")
		sentry.CaptureException(fmt.Errorf("dedup check for %s failed: %w", key, err))
		return err
	}
	if !claimed {
		log.Debug("Post already processed or in session, skipping")
		h.metrics.record(OutcomeDuplicate)
		return nil
	}

	job := Job{
		ID:          uuid.NewString(),
		Source:      source,
		SourceName:  msg.Chat.Username,
		Destination: dest,
		PostID:      key.PostID,
		Trigger:     msg,
		ReceivedAt:  h.now(),
	}
	if err := h.queue.Enqueue(ctx, job); err != nil {
		log.WithError(err).Error("Failed to enqueue post")
		sentry.CaptureException(fmt.Errorf("enqueue %s failed: %w", key, err))
		return err
	}
	h.metrics.Enqueued.Inc()
	log.WithField("correlation_id", job.ID).Info("New post queued")
	return nil
}
