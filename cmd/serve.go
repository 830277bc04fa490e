package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"reportpush/pkg/service"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the report scheduler daemon",
	Long:  "Runs reportpush as a daemon: scheduled tasks fire at their configured times and the status server answers /healthz and /readyz.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, appLogger, err := setup()
		if err != nil {
			fmt.Printf("%v\n", err)
			return
		}
		log := appLogger.With("component", "cmd.serve")

		notifiers, err := enabledNotifiers(cfg, appLogger)
		if err != nil {
			log.Error("Channel configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := service.NewService(cfg, notifiers, appLogger)
		if err != nil {
			log.Error("Failed to initialize service", "error", err)
			return
		}

		log.Info("Daemon started", "channels", enabledChannelNames(notifiers), "tasks", len(cfg.Tasks))
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Daemon runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
