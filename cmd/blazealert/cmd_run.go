package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"blazealert/internal/app"
)

func newRunCmd() *cobra.Command {
	var headless bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the service in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			opts := app.Options{ConfigPath: configPath}
			if !headless {
				opts.In, opts.Out = os.Stdin, os.Stdout
			}
			a, err := app.New(ctx, opts)
			if err != nil {
				return fmt.Errorf("init: %w", err)
			}
			if debug {
				cfg := a.Runtime.Logging
				cfg.Level = "debug"
				a.Logs.Apply(cfg)
			}
			if err := a.Start(ctx); err != nil {
				return fmt.Errorf("start: %w", err)
			}

			reason := app.StopUnknown
			select {
			case sig := <-sigCh:
				reason = app.StopSIGINT
				if sig == syscall.SIGTERM {
					reason = app.StopSIGTERM
				}
			case <-a.Quit():
				reason = app.StopConsoleQuit
			case <-a.Done():
				reason = app.StopFatalError
			}

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			_ = a.Stop(stopCtx, reason)
			if reason == app.StopFatalError {
				return a.Err()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "run without the interactive console")
	return cmd
}
