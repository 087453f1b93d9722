package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mentionwatch/internal/cmdlog"
	"mentionwatch/internal/store/sqlite"
	"mentionwatch/internal/util"
)

var historyCmd = &cobra.Command{
	Use:   "history <thread-id>",
	Short: "Print journaled mentions of a conversation",
	Long: `Print the most recent journaled mentions of a conversation, oldest first,
capped at threadHistoryLimit. Requires storage.dbPath.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	return cmdlog.Run("history", func() error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Storage.DBPath == "" {
			return errors.New("storage.dbPath is not set")
		}
		db, err := sqlite.Open(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		entries, err := db.LoadThread(cmd.Context(), args[0], cfg.ThreadHistoryLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "no journaled mentions for", args[0])
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s  %s  %s\n", e.IngestedAt.Format("2006-01-02 15:04:05"), e.AuthorID, util.Truncate(util.NormalizeWhitespace(e.Text), 120))
		}
		return nil
	})
}
