package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var (
		username string
		password string
		remember bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange credentials for a bearer token and store it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimSpace(line)
			}

			token, err := a.client().Login(cmd.Context(), username, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if err := a.store.Save(token, remember); err != nil {
				return err
			}

			if remember {
				fmt.Fprintln(cmd.OutOrStdout(), "Logged in; token saved.")
				return nil
			}
			// a session token dies with this process; hand it to the shell instead
			fmt.Fprintf(cmd.OutOrStdout(), "export %s=%s\n", a.cfg.Auth.TokenEnv, token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "account name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	cmd.Flags().BoolVar(&remember, "remember", true, "keep the token across sessions")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			inShell := a.cfg.Auth.TokenEnv != "" && os.Getenv(a.cfg.Auth.TokenEnv) != ""
			if err := a.store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			if inShell {
				// the parent shell still holds the variable
				fmt.Fprintf(cmd.OutOrStdout(), "unset %s\n", a.cfg.Auth.TokenEnv)
			}
			return nil
		},
	}
}
