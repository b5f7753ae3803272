package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	sentry "github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	telego "github.com/mymmrac/telego"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	relaybot "telegram-translator/bot"
	"telegram-translator/config"
	"telegram-translator/internal/auth"
	"telegram-translator/internal/database"
	"telegram-translator/internal/dedup"
	"telegram-translator/internal/dispatch"
	"telegram-translator/internal/locales"
	"telegram-translator/internal/logging"
	"telegram-translator/internal/media"
	"telegram-translator/internal/mediagroups"
	"telegram-translator/internal/monitoring"
	"telegram-translator/internal/relay"
	"telegram-translator/internal/translation"
)

// drainTimeout bounds how long shutdown waits for in-flight posts.
const drainTimeout = 90 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initSentry(cfg *config.Config) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
}

func newLogger(cfg *config.Config) logging.Logger {
	return logging.NewLogger(logging.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
}

// openStore opens the configured ledger backend.
func openStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (database.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMongo:
		_, db, err := database.ConnectDB(cfg)
		if err != nil {
			return nil, err
		}
		store := database.NewMongoStore(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close(context.Background())
			return nil, err
		}
		logger.WithField("database", cfg.MongoDBDatabase).Info("Connected to MongoDB ledger")
		return store, nil
	default:
		store, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.WithField("path", cfg.SQLitePath).Info("Opened SQLite ledger")
		return store, nil
	}
}

func closeStore(store database.Store, logger logging.Logger) {
	if err := store.Close(context.Background()); err != nil {
		logger.WithError(err).Error("Error closing ledger")
		sentry.CaptureException(err)
		return
	}
	logger.Info("Ledger closed.")
}

func newTelegramBot(cfg *config.Config) (*telego.Bot, error) {
	if cfg.Debug {
		return telego.NewBot(cfg.BotToken, telego.WithDefaultDebugLogger())
	}
	return telego.NewBot(cfg.BotToken, telego.WithDefaultLogger(false, false))
}

// runRelay wires every component and blocks until ctx is cancelled or a component fails.
func runRelay(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	mappings, err := config.LoadChannelMappings(cfg.ChannelsFile)
	if err != nil {
		if errors.Is(err, config.ErrTemplateWritten) {
			logger.Errorf("%s not found. A template was created, fill in your channels and restart.", cfg.ChannelsFile)
		}
		return err
	}
	settings, err := config.LoadPipeline(cfg.PipelineFile)
	if err != nil {
		return err
	}
	logger.WithField("channels", len(mappings)).Info("Loaded channel mappings")

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore(store, logger)

	claims, err := dedup.NewStore(store, logger)
	if err != nil {
		return err
	}

	if err := locales.Init(cfg.HeaderLanguage, logger); err != nil {
		return fmt.Errorf("failed to initialize locales: %w", err)
	}
	localizer := locales.NewLocalizer(cfg.HeaderLanguage)
	logger.WithField("header_language", locales.DefaultLanguageTag().String()).Debug("Locales loaded")

	prompt, err := translation.NewPromptBuilder(cfg.TargetLanguage, cfg.StyleHint)
	if err != nil {
		return err
	}
	client, err := translation.NewOpenRouterClient(translation.ClientConfig{
		BaseURL:     cfg.OpenRouterBaseURL,
		APIKey:      cfg.OpenRouterAPIKey,
		Model:       cfg.OpenRouterModel,
		MaxTokens:   cfg.TranslateMaxTokens,
		Temperature: cfg.TranslateTemperature,
		MaxAttempts: cfg.TranslateMaxAttempts,
		BaseBackoff: cfg.TranslateBackoff,
		Timeout:     cfg.TranslateTimeout,
	}, logger)
	if err != nil {
		return err
	}
	gateway, err := translation.NewGateway(client, prompt, logger)
	if err != nil {
		return err
	}
	logger.WithFields(logging.Fields{
		"model":    cfg.OpenRouterModel,
		"language": prompt.LanguageName(),
		"target":   prompt.Language().String(),
		"cooldown": cfg.TranslationCooldown.String(),
	}).Info("Translation configured")

	bot, err := newTelegramBot(cfg)
	if err != nil {
		return fmt.Errorf("failed to create telego bot: %w", err)
	}
	checker, err := auth.NewAdminChecker(bot, logger)
	if err != nil {
		return err
	}
	destinations := make([]string, 0, len(mappings))
	for _, dest := range mappings {
		destinations = append(destinations, dest)
	}
	checker.WarnNonAdmin(ctx, destinations)

	history := mediagroups.NewHistory(cfg.HistoryTTL)
	aggregator, err := mediagroups.NewAggregator(history, mediagroups.Options{
		Window:      cfg.GroupWindow,
		SettleDelay: cfg.GroupSettleDelay,
	}, logger)
	if err != nil {
		return err
	}
	mediaRelay, err := media.NewRelay(bot, media.Options{
		Dir:            cfg.MediaDir,
		SendsPerSecond: cfg.SendsPerSecond,
	}, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := relay.NewMetrics(registry)

	pipeline, err := relay.NewPipeline(relay.PipelineDeps{
		Resolver:   aggregator,
		Translator: gateway,
		Gate:       dispatch.NewLimiter(cfg.TranslationCooldown, logger),
		Media:      mediaRelay,
		RelayLog:   store,
		Settings:   settings,
		Localizer:  localizer,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// Pipelines outlive the intake context so that shutdown can drain them.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	var (
		queue       relay.Queue
		memoryQueue *relay.MemoryQueue
	)
	switch cfg.QueueBackend {
	case config.QueueAsynq:
		redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()
		queue = relay.NewAsynqQueue(asynqClient)

		worker := relay.NewAsynqWorker(redisOpt, cfg.AsynqConcurrency, pipeline, logger)
		g.Go(func() error { return worker.Run(gctx) })
	default:
		memoryQueue = relay.NewMemoryQueue(jobCtx, pipeline, cfg.MaxInFlight, logger)
		queue = memoryQueue
	}

	handler, err := relay.NewHandler(relay.HandlerDeps{
		Mappings: mappings,
		Dedup:    claims,
		Queue:    queue,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	cleaner, err := relay.NewCleaner(claims, cfg.PruneSchedule, cfg.RetentionDays, metrics, logger)
	if err != nil {
		return err
	}
	cleaner.Prune(ctx)
	cleaner.Start()
	defer cleaner.Stop()

	updates, err := bot.UpdatesViaLongPolling(gctx, &telego.GetUpdatesParams{
		AllowedUpdates: relaybot.AllowedUpdates,
		Timeout:        30,
	})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}
	appBot, err := relaybot.New(relaybot.BotDeps{
		UpdatesChan: updates,
		Handler:     handler,
		History:     history,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	g.Go(func() error {
		appBot.Start(gctx)
		return nil
	})
	g.Go(func() error {
		history.Run(gctx, time.Minute)
		return nil
	})
	if cfg.MetricsAddr != "" {
		server := monitoring.NewServer(cfg.MetricsAddr, cfg.Version, registry, logger)
		g.Go(func() error { return server.Run(gctx) })
	}

	logger.Info("Relay started")
	runErr := g.Wait()

	if memoryQueue != nil {
		logger.Info("Waiting for in-flight posts...")
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := memoryQueue.Shutdown(drainCtx); err != nil {
			logger.WithError(err).Warn("Shutdown deadline reached with posts still in flight")
		}
	}
	logger.Info("Relay shutdown complete.")
	return runErr
}

// pruneOnce runs a single retention sweep against the configured ledger.
func pruneOnce(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore(store, logger)

	claims, err := dedup.NewStore(store, logger)
	if err != nil {
		return err
	}
	removed := claims.Prune(ctx, cfg.RetentionDays)
	logger.WithFields(logging.Fields{
		"removed":        removed,
		"retention_days": cfg.RetentionDays,
	}).Info("Prune finished")
	return nil
}
