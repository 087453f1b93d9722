// Package cmdlog wraps CLI commands with a run counter and a result log line.
package cmdlog

import (
	"time"

	"mentionwatch/internal/logging"
	"mentionwatch/internal/metrics"
)

// Run executes f as command cmd, counting runs and failures.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	start := time.Now()
	err := f()
	log := logging.Named("cli").With().Str("cmd", cmd).Dur("took", time.Since(start)).Logger()
	if err != nil {
		metrics.IncCommandError(cmd)
		log.Error().Err(err).Msg(cmd + "_error")
	} else {
		log.Info().Msg(cmd + "_ok")
	}
	return err
}
