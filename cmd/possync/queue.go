package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the offline queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending mutations in enqueue order",
	RunE:  runQueueList,
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <item-id>",
	Short: "Reset an exhausted item's retry budget and drain",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueRetry,
}

var queueDiscardCmd = &cobra.Command{
	Use:   "discard <item-id>",
	Short: "Drop a queued mutation without applying it",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueDiscard,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueRetryCmd)
	queueCmd.AddCommand(queueDiscardCmd)
}

func runQueueList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	items, err := c.Data.PendingItems(ctx)
	if err != nil {
		return fmt.Errorf("list queue: %w", err)
	}

	if jsonOutput {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(items)
	}

	if len(items) == 0 {
		fmt.Println("queue empty")
		return nil
	}

	maxRetries := cfg.Sync.MaxItemRetries
	for _, item := range items {
		line := fmt.Sprintf("%s  %-6s %-8s enqueued=%s retries=%d",
			item.ID, item.Action, item.EntityType,
			item.EnqueuedAt.Format(time.RFC3339), item.RetryCount)
		if item.RetryCount >= maxRetries {
			color.Yellow("%s (parked, needs retry/discard)", line)
		} else {
			fmt.Println(line)
		}
	}

	return nil
}

func runQueueRetry(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	if !probeConnectivity(ctx, c) {
		return fmt.Errorf("server unreachable")
	}

	if err := c.Data.RetryQueueItem(ctx, args[0]); err != nil {
		return fmt.Errorf("retry item: %w", err)
	}

	fmt.Println("retry scheduled")
	return nil
}

func runQueueDiscard(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Data.DiscardQueueItem(ctx, args[0]); err != nil {
		return fmt.Errorf("discard item: %w", err)
	}

	color.Yellow("discarded %s; the change will never reach the server", args[0])
	return nil
}
