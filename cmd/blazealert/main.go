package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"blazealert/internal/app"
	"blazealert/internal/delivery"
	"blazealert/internal/permission"
	logx "blazealert/pkg/logx"
)

var (
	// Version info (set by ldflags)
	version = "dev"

	configPath string
	debug      bool
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "blazealert",
		Short: "Fire hazard alert feed with in-app and push delivery",
		Long: `blazealert keeps a newest-first feed of fire hazard alerts, delivers new
alerts in-app and, with consent, as OS push notifications.

  blazealert run                 Run the service (console, generator, HTTP API)
  blazealert feed list           Show the stored feed
  blazealert consent request     Ask for push notification permission
  blazealert auth login          Sign in with the demo account`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config.yaml", "config file path (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newRunCmd(),
		newFeedCmd(),
		newConsentCmd(),
		newAuthCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openCore bootstraps the shared components for a one-shot command. The
// caller must Close the result.
func openCore(ctx context.Context, terminal permission.Prompter) (*app.Core, error) {
	level := "warn"
	if debug {
		level = "debug"
	}
	return app.Bootstrap(ctx, app.CoreOptions{
		ConfigPath:  configPath,
		Terminal:    terminal,
		Presenter:   delivery.NewConsolePresenter(logx.Stdout()),
		LogOverride: level,
	})
}
