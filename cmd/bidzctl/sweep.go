package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var sweepEvery time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close auctions whose end time has passed",
	Long: `Close every active auction whose end time has passed, settling it with
the highest bidder that can still pay. Runs once unless --every is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sweep := func(now time.Time) error {
			closed, err := store.CloseExpiredAuctions(ctx, now)
			fmt.Fprintf(cmd.OutOrStdout(), "%s closed %s auctions\n", now.Format(time.RFC3339), color.GreenString("%d", closed))
			return err
		}
		if sweepEvery <= 0 {
			return sweep(time.Now())
		}
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		for {
			if err := sweep(time.Now()); err != nil {
				color.Red("sweep failed: %v", err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	},
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepEvery, "every", 0, "repeat the sweep at this interval until interrupted")
}
