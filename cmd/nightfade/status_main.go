package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradeworks/nightfade/internal/session"
	"github.com/tradeworks/nightfade/internal/store"
)

// runStatus renders whichever session the checkpoint file holds: the
// current one, or last night's if it is still mid-flight.
func runStatus(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := store.NewFileStore(cfg.StateDir)
	if err != nil {
		return err
	}
	sched, err := session.NewSchedule(cfg.Schedule)
	if err != nil {
		return err
	}

	date := sched.SessionDateFor(time.Now())
	state, err := st.LoadSession(date)
	if err != nil {
		return err
	}
	if state == nil {
		prev, perr := sched.PrevTradingDate(date)
		if perr == nil {
			if state, err = st.LoadSession(prev); err != nil {
				return err
			}
		}
	}
	if state == nil {
		fmt.Println("no session on disk")
		return nil
	}

	status := session.BuildStatus(state, cfg.Strategy.ExtremeMovePct)
	perf, err := st.LoadPerformance()
	if err != nil {
		return err
	}

	if asJSON {
		out, err := json.MarshalIndent(struct {
			Session     session.Status    `json:"session"`
			Performance store.Performance `json:"performance"`
		}{status, perf}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	fmt.Println(status.Format())
	fmt.Println(perf.Summary())
	return nil
}
