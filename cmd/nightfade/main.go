package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tradeworks/nightfade/internal/config"
	"github.com/tradeworks/nightfade/internal/session"
)

const (
	appName = "nightfade"
	version = "v1.3.0"
)

// Exit codes. The supervisor distinguishes "crashed, restart me" from
// "finished but positions are still on the book", which needs a human
// before the next open.
const (
	exitFatal      = 1
	exitUnresolved = 2
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Unattended overnight fade bot for after-hours equities",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSession,
		Long: `nightfade trades one session per day: it anchors official 4 PM closes,
fades extreme after-hours movers between 4:05 PM and 8 PM Eastern,
holds overnight and closes everything in a ten-minute window after the
next open. State is checkpointed before every order leaves the process,
so a crash resumes the session instead of double-trading it.

Invoked bare it runs a full session, same as "nightfade run".`,
	}

	rootCmd.PersistentFlags().String("config", "config/config.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().String("state-dir", "", "Override the state directory from the config file")
	rootCmd.Flags().Bool("dry-run", false, "Log orders instead of submitting them")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a session from boot to archive",
		Long:  "Drives the session phase machine to completion: anchor, monitor, manage, exit, archive. Picks up the checkpoint file first, so rerunning after a crash resumes mid-session.",
		RunE:  runSession,
	}
	runCmd.Flags().Bool("dry-run", false, "Log orders instead of submitting them")

	onceCmd := &cobra.Command{
		Use:   "once",
		Short: "Boot, run one manage cycle and checkpoint",
		Long:  "A single reconcile-and-manage pass against the brokerage. Useful as a smoke test and for supervising a live session by hand.",
		RunE:  runOnce,
	}
	onceCmd.Flags().Bool("dry-run", false, "Log orders instead of submitting them")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the session status from the checkpoint file",
		Long:  "Renders the on-disk checkpoint without touching the brokerage, so it is safe to run while a session is live.",
		RunE:  runStatus,
	}
	statusCmd.Flags().Bool("json", false, "Emit machine-readable JSON")

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print cumulative performance across archived sessions",
		RunE:  runReport,
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reportCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, session.ErrUnresolvedPositions) {
			log.Error().Err(err).Msg("session ended with positions still open")
			os.Exit(exitUnresolved)
		}
		log.Error().Err(err).Msg("command failed")
		os.Exit(exitFatal)
	}
}

// loadConfig reads the file named by the persistent --config flag and
// applies the --state-dir override when set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("state-dir"); dir != "" {
		cfg.StateDir = dir
	}
	return cfg, nil
}
