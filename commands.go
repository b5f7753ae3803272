package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sentry "github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"

	"telegram-translator/config"
)

// newRootCmd returns the translator command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "telegram-translator",
		Short:         "Relay Telegram channel posts to translated destination channels",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newPruneCmd())
	root.AddCommand(newInitCmd())
	return root
}

// loadConfig loads the environment configuration and applies flag overrides.
func loadConfig(channelsFile, pipelineFile string) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if channelsFile != "" {
		cfg.ChannelsFile = channelsFile
	}
	if pipelineFile != "" {
		cfg.PipelineFile = pipelineFile
	}
	return cfg, nil
}

func newRunCmd() *cobra.Command {
	var channelsFile, pipelineFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the relay",
		Long: `Listen for posts in the mapped source channels, translate them and publish them
to the destination channels until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(channelsFile, pipelineFile)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if err := cfg.RequireRelay(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			logger := newLogger(cfg)
			if err := initSentry(cfg); err != nil {
				logger.WithError(err).Error("sentry.Init failed")
				return err
			}
			defer sentry.Flush(2 * time.Second)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := runRelay(ctx, cfg, logger); err != nil {
				if !errors.Is(err, config.ErrTemplateWritten) {
					logger.WithError(err).Error("Relay stopped with error")
					sentry.CaptureException(err)
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&channelsFile, "channels", "", "channel mapping file (overrides CHANNELS_FILE)")
	cmd.Flags().StringVar(&pipelineFile, "pipeline", "", "pipeline settings file (overrides PIPELINE_FILE)")
	return cmd
}

func newPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove ledger records older than RETENTION_DAYS and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig("", "")
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			return pruneOnce(cmd.Context(), cfg, newLogger(cfg))
		},
	}
	return cmd
}

func newInitCmd() *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example channel mapping file",
		Example: `  # Create channels.json in the working directory
  telegram-translator init

  # Overwrite an existing file
  telegram-translator init --path channels.json --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.WriteChannelTemplate(path); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s. Map each source channel to its destination and run again.\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "channels.json", "where to write the template")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
