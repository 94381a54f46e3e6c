package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	syncsvc "github.com/TheMichaelB/possync/internal/services/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the offline queue against the server",
	Long: `Sync replays queued mutations in enqueue order. Items that fail stay
queued with an incremented retry count; items past the retry limit are
skipped until retried explicitly (see "possync queue retry").`,
	Example: `  possync sync
  possync sync --timeout 2m`,
	RunE: runSync,
}

var syncTimeout time.Duration

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 5*time.Minute,
		"Abort the drain after this long")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ctx, cancelTimeout := context.WithTimeout(ctx, syncTimeout)
	defer cancelTimeout()

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	if !probeConnectivity(ctx, c) {
		return fmt.Errorf("server unreachable, queue left intact")
	}

	// Render progress while the drain runs.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range c.Reconciler.Events() {
			if jsonOutput {
				continue
			}
			switch ev.Type {
			case syncsvc.EventItemApplied:
				color.Green("applied  %s %s (%s)", ev.Item.Action, ev.Item.EntityType, ev.Item.ID)
			case syncsvc.EventItemFailed:
				color.Red("failed   %s %s (%s): %v", ev.Item.Action, ev.Item.EntityType, ev.Item.ID, ev.Error)
			case syncsvc.EventItemSkipped:
				color.Yellow("skipped  %s %s (%s): retry limit reached", ev.Item.Action, ev.Item.EntityType, ev.Item.ID)
			case syncsvc.EventDrainCompleted:
				return
			}
		}
	}()

	err = c.Data.Sync(ctx)

	select {
	case <-done:
	case <-time.After(time.Second):
	}

	if err != nil {
		return fmt.Errorf("drain: %w", err)
	}

	remaining, lenErr := c.Data.SyncQueueLength(ctx)
	if lenErr == nil {
		if remaining == 0 {
			fmt.Println("queue empty")
		} else {
			color.Yellow("%d item(s) still pending", remaining)
		}
	}

	return nil
}
