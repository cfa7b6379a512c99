package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matheus3301/gravvy/internal/config"
	"github.com/matheus3301/gravvy/internal/session"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Edit config.toml",
}

var setDefaultCmd = &cobra.Command{
	Use:   "set-default <phone>",
	Short: "Set the account used when --account is omitted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := session.ValidatePhone(args[0]); err != nil {
			return err
		}
		path := session.ConfigPath()
		cfg, err := config.LoadOrDefault(path)
		if err != nil {
			return err
		}
		cfg.DefaultAccount = args[0]
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		fmt.Printf("default account set to %s\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(setDefaultCmd)
}
