package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mentionwatch/internal/cmdlog"
	"mentionwatch/internal/events"
	"mentionwatch/internal/logging"
	"mentionwatch/internal/metrics"
	"mentionwatch/internal/service"
	"mentionwatch/internal/store/sqlite"
	"mentionwatch/internal/util"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll for mentions until interrupted",
	Long: `Resolve the account, run one poll pass immediately and then poll every
pollIntervalMs. New mentions are printed as they arrive. When storage.dbPath is
set the cursor survives restarts and every mention is journaled.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	return cmdlog.Run("run", func() error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newClient(cfg)
		if err != nil {
			return err
		}
		log := logging.Named("run")

		var opts []service.Option
		if cfg.Storage.DBPath != "" {
			db, err := sqlite.Open(cfg.Storage.DBPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer db.Close()
			opts = append(opts, service.WithCursorStore(db), service.WithJournal(db))
		}
		if srv := metrics.StartServer(cfg.Metrics.Addr); srv != nil {
			log.Info().Str("addr", srv.Addr).Msg("metrics_listening")
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()
		}

		svc := service.New(cfg, client, opts...)
		out := cmd.OutOrStdout()
		events.On(svc.Bus(), func(e events.NewMention) {
			fmt.Fprintf(out, "[%s] @%s in %s: %s\n", e.TweetID, e.UserID, e.ThreadID, util.Truncate(util.NormalizeWhitespace(e.Message), 140))
		})
		events.On(svc.Bus(), func(e events.RateLimitWarning) {
			log.Warn().Err(e.Err).Msg("rate_limit_warning")
		})
		events.On(svc.Bus(), func(e events.PollError) {
			log.Error().Err(e.Err).Msg("poll_error")
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := svc.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		svc.Stop()
		log.Info().Str("cursor", svc.Ingestor().Cursor()).Msg("shutdown")
		return nil
	})
}
