package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"blazealert/internal/permission"
)

func newConsentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consent",
		Short: "Manage push notification permission",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show the current permission state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := openCore(cmd.Context(), nil)
				if err != nil {
					return err
				}
				defer c.Close()
				fmt.Println(c.Gate.Check(cmd.Context()))
				return nil
			},
		},
		&cobra.Command{
			Use:   "request",
			Short: "Ask for permission to send push notifications",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := openCore(cmd.Context(), permission.NewReaderPrompter(os.Stdin, os.Stdout))
				if err != nil {
					return err
				}
				defer c.Close()
				st, err := c.Feed.RequestConsent(cmd.Context())
				fmt.Println(st)
				if errors.Is(err, permission.ErrUnsupported) {
					return nil
				}
				return err
			},
		},
		&cobra.Command{
			Use:   "revoke",
			Short: "Forget a remembered decision",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := openCore(cmd.Context(), nil)
				if err != nil {
					return err
				}
				defer c.Close()
				if err := c.Platform.Revoke(cmd.Context()); err != nil {
					return err
				}
				fmt.Println("revoked")
				return nil
			},
		},
	)
	return cmd
}
