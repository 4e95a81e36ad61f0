package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tradeworks/nightfade/internal/store"
)

// runReport prints the performance ledger accumulated across archived
// sessions.
func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := store.NewFileStore(cfg.StateDir)
	if err != nil {
		return err
	}
	perf, err := st.LoadPerformance()
	if err != nil {
		return err
	}
	fmt.Println(perf.Summary())
	return nil
}
