package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/gravvy/internal/client"
	"github.com/matheus3301/gravvy/internal/config"
	"github.com/matheus3301/gravvy/internal/session"
)

const callTimeout = 30 * time.Second

var (
	flagAccount string
	flagJSON    bool
)

var rootCmd = &cobra.Command{
	Use:   "gravvyctl",
	Short: "Control a gravvyd daemon and inspect its store",
	Long: `gravvyctl talks to the gravvyd daemon of one account over its Unix
socket. The read commands (videos, members, contacts) open the account's
store directly and work while the daemon is down.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAccount, "account", "", "account phone number (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")

	rootCmd.AddCommand(statusCmd, refreshCmd, signInCmd, signOutCmd)
	rootCmd.AddCommand(playCmd, likeCmd, clearCmd, leaveCmd, revokeCmd, deleteClipsCmd, createCmd)
	rootCmd.AddCommand(videosCmd, videoCmd, membersCmd, contactsCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads config.toml with GRAVVY_* variables and --account on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		return nil, err
	}
	v := config.NewViper()
	if err := v.BindPFlag("default_account", rootCmd.PersistentFlags().Lookup("account")); err != nil {
		return nil, err
	}
	if err := config.Overlay(cfg, v); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveAccount() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return session.Resolve("", cfg)
}

// withDaemon connects to the daemon of the resolved account.
func withDaemon(fn func(ctx context.Context, c *client.Client, account string) error) error {
	account, err := resolveAccount()
	if err != nil {
		return err
	}
	c, err := client.New(session.DefaultLayout().SocketPath(account))
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for %s: %w", account, err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return fn(ctx, c, account)
}
