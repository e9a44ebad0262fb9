package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"blazealert/internal/alert"
	"blazealert/internal/app"
	"blazealert/internal/generator"
)

func newFeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Inspect and update the stored alert feed",
	}
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	cmd.AddCommand(
		newFeedListCmd(),
		feedAction("unread", "Print the unread count", cobra.NoArgs, func(ctx context.Context, c *app.Core, _ []string) error {
			return printOut(map[string]int{"unread": c.Feed.UnreadCount()}, fmt.Sprintf("%d unread", c.Feed.UnreadCount()))
		}),
		feedAction("read <id>", "Mark one alert as read", cobra.ExactArgs(1), func(ctx context.Context, c *app.Core, args []string) error {
			if _, ok := c.Feed.Get(args[0]); !ok {
				return fmt.Errorf("no alert with id %q", args[0])
			}
			changed := c.Feed.MarkAsRead(ctx, args[0])
			return printOut(map[string]any{"id": args[0], "changed": changed}, fmt.Sprintf("%s read (changed=%v)", args[0], changed))
		}),
		feedAction("read-all", "Mark every alert as read", cobra.NoArgs, func(ctx context.Context, c *app.Core, _ []string) error {
			n := c.Feed.MarkAllAsRead(ctx)
			return printOut(map[string]int{"marked": n}, fmt.Sprintf("marked %d as read", n))
		}),
		feedAction("clear", "Remove every alert", cobra.NoArgs, func(ctx context.Context, c *app.Core, _ []string) error {
			n := c.Feed.ClearAll(ctx)
			return printOut(map[string]int{"cleared": n}, fmt.Sprintf("cleared %d notifications", n))
		}),
		feedAction("simulate", "Ingest one generated alert", cobra.NoArgs, func(ctx context.Context, c *app.Core, _ []string) error {
			gen, err := generator.New(c.Runtime.Generator.Config, c.Log)
			if err != nil {
				return err
			}
			a := gen.Candidate(time.Now())
			if err := c.IngestOnce(ctx, a); err != nil {
				return err
			}
			return printOut(a, a.Summary(time.Now()))
		}),
	)
	return cmd
}

func newFeedListCmd() *cobra.Command {
	var (
		unreadOnly bool
		intensity  string
	)
	cmd := feedAction("list", "Show the feed, newest first", cobra.NoArgs, func(ctx context.Context, c *app.Core, _ []string) error {
		var in alert.Intensity
		if intensity != "" {
			var err error
			if in, err = alert.ParseIntensity(intensity); err != nil {
				return err
			}
		}
		f := c.Feed.Snapshot().Filter(unreadOnly, in)
		if jsonOutput {
			return writeJSON(f)
		}
		if f.Len() == 0 {
			fmt.Println("No notifications.")
			return nil
		}
		now := time.Now()
		for i, a := range f {
			fmt.Printf("%2d %s\n", i+1, a.Summary(now))
		}
		return nil
	})
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "only unread alerts")
	cmd.Flags().StringVar(&intensity, "intensity", "", "only alerts of this intensity (high, medium, low)")
	return cmd
}

// feedAction builds a subcommand that runs fn against a bootstrapped core.
func feedAction(use, short string, args cobra.PositionalArgs, fn func(ctx context.Context, c *app.Core, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openCore(ctx, nil)
			if err != nil {
				return err
			}
			defer c.Close()
			return fn(ctx, c, args)
		},
	}
}

func printOut(v any, human string) error {
	if jsonOutput {
		return writeJSON(v)
	}
	fmt.Println(human)
	return nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
