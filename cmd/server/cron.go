package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"customs_auction/internal/auction"
	"customs_auction/internal/config"

	"github.com/spf13/cobra"
)

var cronForce bool

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Run a weekly auction job once",
}

var cronOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open scheduled auctions whose start date has passed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd.Context(), func(a *app) (config.Schedule, func(context.Context) (*auction.LifecycleReport, error)) {
			return a.cfg.OpenSchedule, a.runner.Open
		})
	},
}

var cronCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close finished auctions and record winners",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd.Context(), func(a *app) (config.Schedule, func(context.Context) (*auction.LifecycleReport, error)) {
			return a.cfg.CloseSchedule, a.runner.Close
		})
	},
}

func runJob(ctx context.Context, pick func(*app) (config.Schedule, func(context.Context) (*auction.LifecycleReport, error))) error {
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	sched, run := pick(a)
	if !cronForce && !sched.Within(time.Now(), a.cfg.CronLocation, a.cfg.CronWindow) {
		fmt.Fprintf(os.Stderr, "outside schedule window (%s, %s); use --force to run anyway\n", sched, a.cfg.CronWindow)
		return nil
	}
	rep, err := run(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func init() {
	cronCmd.PersistentFlags().BoolVar(&cronForce, "force", false, "run even outside the weekly schedule window")
	cronCmd.AddCommand(cronOpenCmd, cronCloseCmd)
	rootCmd.AddCommand(cronCmd)
}
