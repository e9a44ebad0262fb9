package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"blazealert/internal/auth"
)

func newAuthCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Demo account session",
	}
	login := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCore(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer c.Close()
			u, err := c.Auth.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Printf("signed in as %s (uid %s)\n", u.Email, u.UID)
			return nil
		},
	}
	login.Flags().StringVar(&email, "email", auth.DemoEmail, "account email")
	login.Flags().StringVar(&password, "password", "", "account password")

	cmd.AddCommand(
		login,
		&cobra.Command{
			Use:   "logout",
			Short: "Sign out",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := openCore(cmd.Context(), nil)
				if err != nil {
					return err
				}
				defer c.Close()
				return c.Auth.Logout(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "whoami",
			Short: "Show the signed-in user",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := openCore(cmd.Context(), nil)
				if err != nil {
					return err
				}
				defer c.Close()
				u, err := c.Auth.CurrentUser(cmd.Context())
				if err != nil {
					return err
				}
				if u == nil {
					fmt.Println("not signed in")
					return nil
				}
				fmt.Printf("%s (uid %s)\n", u.Email, u.UID)
				return nil
			},
		},
	)
	return cmd
}
