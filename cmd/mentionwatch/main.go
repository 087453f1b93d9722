// Command mentionwatch polls X for mentions of the configured account and
// exposes post, reply, search and delete operations from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mentionwatch/internal/config"
	"mentionwatch/internal/logging"
	"mentionwatch/internal/service"
	"mentionwatch/internal/theme"
	"mentionwatch/internal/xclient"
)

var (
	configPath string
	retry      bool
)

var rootCmd = &cobra.Command{
	Use:   "mentionwatch",
	Short: "Watch and answer X mentions",
	Long: `mentionwatch polls the X recent-search API for mentions of the authenticated
account, keeps a bounded history per conversation and reports every new mention.

Configuration is read from --config and MENTIONWATCH_* environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		theme.PrintBanner(cmd.OutOrStdout())
		return cmd.Help()
	},
}

func init() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./mentionwatch.yaml", "path to config file")
	rootCmd.AddCommand(initCmd, runCmd, whoamiCmd, tweetCmd, replyCmd, searchCmd, deleteCmd, historyCmd)
	for _, c := range []*cobra.Command{tweetCmd, replyCmd, deleteCmd} {
		c.Flags().BoolVar(&retry, "retry", false, "wait and retry when rate limited")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config and points the root logger at its level.
// A missing file at the default path falls back to environment only.
func loadConfig() (config.Config, error) {
	path := configPath
	if _, err := os.Stat(path); os.IsNotExist(err) && !rootCmd.PersistentFlags().Changed("config") {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	logging.Init(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "mentionwatch", Writer: os.Stderr})
	return cfg, nil
}

func newClient(cfg config.Config) (*xclient.HTTPClient, error) {
	creds, err := cfg.ResolveCredentials()
	if err != nil {
		return nil, err
	}
	logging.Named("cli").Debug().Str("auth", creds.Kind()).Msg("credentials_resolved")
	return xclient.NewHTTPClient(creds, cfg.API), nil
}

// newService builds a service without the poll loop, for one-shot commands.
func newService() (*service.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return service.New(cfg, client), nil
}
