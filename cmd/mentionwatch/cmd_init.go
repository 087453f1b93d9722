package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"mentionwatch/internal/cmdlog"
	"mentionwatch/internal/config"
	"mentionwatch/internal/theme"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long:  `Write a config file with every optional key set to its default at --config.`,
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	return cmdlog.Run("init", func() error {
		if err := config.Save(configPath, config.Default()); err != nil {
			return err
		}
		abs, _ := filepath.Abs(configPath)
		theme.PrintBanner(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), "Config written to:", abs)
		fmt.Fprintln(cmd.OutOrStdout(), "Set apiKey/apiSecret plus access or bearer tokens before running.")
		return nil
	})
}
