package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"reportpush/pkg/channel"
	"reportpush/pkg/channel/telegram"
	"reportpush/pkg/channel/wecom"
	"reportpush/pkg/config"
	"reportpush/pkg/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reportpush",
	Short: "Push report snapshots to chat webhooks on a schedule",
	Long:  "reportpush renders report snapshots through configured commands and delivers them to WeCom group robots (and optionally Telegram), on daily times or cron schedules.",
}

// Execute runs the root command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads config and installs the configured logger as the default.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)

	return cfg, appLogger, nil
}

// enabledNotifiers builds one notifier per enabled channel.
func enabledNotifiers(cfg *config.Config, log *slog.Logger) ([]channel.Notifier, error) {
	notifiers := make([]channel.Notifier, 0, 2)

	if cfg.Channels.Wecom.Enabled {
		notifier, err := wecom.NewNotifier(cfg.Channels.Wecom, log)
		if err != nil {
			return nil, fmt.Errorf("configure wecom channel: %w", err)
		}
		notifiers = append(notifiers, notifier)
	}

	if cfg.Channels.Telegram.Enabled {
		notifier, err := telegram.NewNotifier(cfg.Channels.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure telegram channel: %w", err)
		}
		notifiers = append(notifiers, notifier)
	}

	if len(notifiers) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return notifiers, nil
}

// enabledChannelNames joins notifier names for startup logging.
func enabledChannelNames(notifiers []channel.Notifier) string {
	names := ""
	for i, notifier := range notifiers {
		if i > 0 {
			names += ","
		}
		names += notifier.Name()
	}

	return names
}
