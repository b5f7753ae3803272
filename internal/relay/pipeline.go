package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	"github.com/nicksnyder/go-i18n/v2/i18n"

	"telegram-translator/config"
	"telegram-translator/internal/database"
	"telegram-translator/internal/database/models"
	"telegram-translator/internal/locales"
	"telegram-translator/internal/logging"
	"telegram-translator/internal/media"
	"telegram-translator/internal/sanitize"
)

// GroupResolver returns every message of the post a trigger belongs to.
type GroupResolver interface {
	Resolve(ctx context.Context, trigger telego.Message) []telego.Message
}

// Translator produces target-language HTML. An empty result with a nil error means the
// provider answered without usable content.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Gate serializes translation calls.
type Gate interface {
	Do(ctx context.Context, label string, fn func(ctx context.Context) error) error
}

// MediaRelay fetches, sends and removes post media.
type MediaRelay interface {
	Fetch(ctx context.Context, source, postID string, msgs []telego.Message) []string
	Send(ctx context.Context, dest string, paths []string, caption string) bool
	Cleanup(paths []string)
}

// PipelineDeps contains the dependencies for Pipeline.
type PipelineDeps struct {
	Resolver   GroupResolver
	Translator Translator
	Gate       Gate
	Media      MediaRelay
	RelayLog   database.RelayLogger // optional
	Settings   *config.Pipeline
	Localizer  *i18n.Localizer
	Metrics    *Metrics
	Logger     logging.Logger
}

// Pipeline runs one claimed post from aggregation to delivery.
type Pipeline struct {
	deps       PipelineDeps
	transforms map[string]sanitize.Transform
	now        func() time.Time
}

// NewPipeline validates deps and compiles the per-source transforms.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	if deps.Resolver == nil {
		return nil, fmt.Errorf("group resolver cannot be nil")
	}
	if deps.Translator == nil {
		return nil, fmt.Errorf("translator cannot be nil")
	}
	if deps.Gate == nil {
		return nil, fmt.Errorf("translation gate cannot be nil")
	}
	if deps.Media == nil {
		return nil, fmt.Errorf("media relay cannot be nil")
	}
	if deps.Localizer == nil {
		return nil, fmt.Errorf("localizer cannot be nil")
	}
	if deps.Settings == nil {
		deps.Settings = &config.Pipeline{AdMarkers: config.DefaultAdMarkers}
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	transforms := make(map[string]sanitize.Transform, len(deps.Settings.Sources))
	for source := range deps.Settings.Sources {
		chain, err := sanitize.Chain(deps.Settings.TransformsFor(source))
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", source, err)
		}
		if chain != nil {
			transforms[config.NormalizeSource(source)] = chain
		}
	}
	return &Pipeline{deps: deps, transforms: transforms, now: time.Now}, nil
}

// Process runs job to a terminal outcome. It never returns an error: failures are logged and the
// post stays marked as processed.
func (p *Pipeline) Process(ctx context.Context, job Job) (outcome Outcome) {
	log := p.deps.Logger.WithFields(logging.Fields{
		"source":         job.Source,
		"post":           job.PostID,
		"correlation_id": job.ID,
	})
	p.deps.Metrics.InFlight.Inc()
	defer p.deps.Metrics.InFlight.Dec()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while processing %s: %v", job.Key(), r)
			log.WithField("panic", r).Error("Recovered from panic in pipeline")
			sentry.CaptureException(err)
			outcome = OutcomeFailed
		}
		p.deps.Metrics.record(outcome)
	}()

	group := p.deps.Resolver.Resolve(ctx, job.Trigger)
	body := ComposeBody(group)
	if transform, ok := p.transforms[job.Source]; ok {
		body = strings.TrimSpace(transform(body))
	}

	if body == "" {
		log.Info("Post has no text, skipping")
		return OutcomeFiltered
	}
	if p.deps.Settings.ContainsAdMarker(body) {
		log.Info("Post is an advertisement, skipping")
		return OutcomeFiltered
	}
	log.WithField("preview", preview(body, 120)).Info("Processing post")

	var translated string
	err := p.deps.Gate.Do(ctx, job.Key().String(), func(ctx context.Context) error {
		start := time.Now()
		defer func() { p.deps.Metrics.TranslationSeconds.Observe(time.Since(start).Seconds()) }()
		var err error
		translated, err = p.deps.Translator.Translate(ctx, body)
		return err
	})
	if err != nil {
		log.WithError(err).Error("Translation failed")
		sentry.CaptureException(fmt.Errorf("translation of %s failed: %w", job.Key(), err))
		return OutcomeFailed
	}
	if translated == "" {
		log.Error("Translation returned no result")
		return OutcomeFailed
	}

	caption := locales.RelayHeader(p.deps.Localizer, job.DisplaySource(), job.PostID) + "\n\n" + translated

	var mediaMsgs []telego.Message
	for _, msg := range group {
		if media.HasMedia(msg) {
			mediaMsgs = append(mediaMsgs, msg)
		}
	}
	paths := p.deps.Media.Fetch(ctx, job.Source, job.PostID, mediaMsgs)
	defer p.deps.Media.Cleanup(paths)

	outcome = OutcomeSent
	if ok := p.deps.Media.Send(ctx, job.Destination, paths, caption); !ok {
		outcome = OutcomeSendFailed
		log.WithField("destination", job.Destination).Warn("Failed to send post")
	} else {
		log.WithField("destination", job.Destination).Info("Successfully posted")
	}

	p.logRelay(ctx, job, len(group), len(paths), translated, outcome)
	return outcome
}

func (p *Pipeline) logRelay(ctx context.Context, job Job, messages, mediaCount int, caption string, outcome Outcome) {
	if p.deps.RelayLog == nil {
		return
	}
	entry := models.RelayLog{
		Source:       job.Source,
		Destination:  job.Destination,
		PostID:       job.PostID,
		MessageCount: messages,
		MediaCount:   mediaCount,
		Caption:      caption,
		Outcome:      models.OutcomeSent,
		ReceivedAt:   job.ReceivedAt,
		PublishedAt:  p.now(),
	}
	if outcome == OutcomeSendFailed {
		entry.Outcome = models.OutcomeSendFailed
	}
	if err := p.deps.RelayLog.LogRelayedPost(ctx, entry); err != nil {
		p.deps.Logger.WithError(err).WithField("post", job.Key().String()).Warn("Failed to write relay log")
		sentry.CaptureException(fmt.Errorf("relay log for %s failed: %w", job.Key(), err))
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
