package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "Product catalog operations",
}

var productsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products (fresh when online, cached otherwise)",
	RunE:  runProductsList,
}

func init() {
	rootCmd.AddCommand(productsCmd)
	productsCmd.AddCommand(productsListCmd)
}

func runProductsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	online := probeConnectivity(ctx, c)

	products, err := c.Data.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}

	if jsonOutput {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(products)
	}

	if !online {
		color.Yellow("offline: showing cached catalog")
	}

	if len(products) == 0 {
		fmt.Println("no products")
		return nil
	}

	for _, p := range products {
		status := " "
		if !p.Active {
			status = "✗"
		}
		fmt.Printf("%s %-12s %-30s %10s  stock=%d\n", status, p.ID, p.Name, p.Price, p.StockQty)
	}

	return nil
}
