package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/possync/internal/client"
	"github.com/TheMichaelB/possync/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, cache, and pending-change status",
	Example: `  possync status
  possync status --json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	online := probeConnectivity(ctx, c)

	pending, err := c.Data.SyncQueueLength(ctx)
	if err != nil {
		return fmt.Errorf("read queue length: %w", err)
	}

	counts := map[string]int{}
	for _, coll := range []string{
		store.CollectionProducts,
		store.CollectionCustomers,
		store.CollectionDiscounts,
		store.CollectionOrders,
		store.CollectionSettings,
	} {
		n, err := c.Store.Count(coll)
		if err != nil {
			return fmt.Errorf("count %s: %w", coll, err)
		}
		counts[coll] = n
	}

	if jsonOutput {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
			"online":          online,
			"pending_changes": pending,
			"cached":          counts,
		})
	}

	if online {
		color.Green("● online")
	} else {
		color.Red("● offline")
	}

	if pending > 0 {
		color.Yellow("%d pending change(s) awaiting sync", pending)
	} else {
		fmt.Println("no pending changes")
	}

	fmt.Println("cached records:")
	for _, coll := range []string{
		store.CollectionProducts,
		store.CollectionCustomers,
		store.CollectionDiscounts,
		store.CollectionOrders,
		store.CollectionSettings,
	} {
		fmt.Printf("  %-10s %d\n", coll, counts[coll])
	}

	return nil
}

// probeConnectivity starts the presence monitor and waits briefly for
// the first dial to settle.
func probeConnectivity(ctx context.Context, c *client.Client) bool {
	monCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.Run(monCtx)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.Data.IsOnline() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}

	return c.Data.IsOnline()
}
