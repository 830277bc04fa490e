package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"reportpush/pkg/service"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [task...]",
	Short: "Run tasks immediately, outside their schedule",
	Long:  "Runs the named tasks once, right now, through the full render/check/deliver pipeline. With no arguments every configured task runs. Useful for debugging a task without waiting for its scheduled time.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, appLogger, err := setup()
		if err != nil {
			fmt.Printf("%v\n", err)
			return
		}
		log := appLogger.With("component", "cmd.run")

		notifiers, err := enabledNotifiers(cfg, appLogger)
		if err != nil {
			log.Error("Channel configuration invalid", "error", err)
			return
		}

		svc, err := service.NewService(cfg, notifiers, appLogger)
		if err != nil {
			log.Error("Failed to initialize service", "error", err)
			return
		}

		names := args
		if len(names) == 0 {
			names = svc.TaskNames()
			sort.Strings(names)
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		failed := 0
		for _, name := range names {
			log.Info("Running task", "task", name)
			if err := svc.RunTask(runCtx, name); err != nil {
				log.Error("Task run failed", "task", name, "error", err)
				failed++
				continue
			}
			log.Info("Task run completed", "task", name)
		}

		if failed > 0 {
			log.Error("Some tasks failed", "failed", failed, "total", len(names))
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
