package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/possync/internal/client"
	"github.com/TheMichaelB/possync/internal/config"
	"github.com/TheMichaelB/possync/internal/events"
)

var (
	cfgPath    string
	jsonOutput bool

	cfg    *config.Config
	logger *events.Logger
)

var rootCmd = &cobra.Command{
	Use:   "possync",
	Short: "Offline-first sync client for the POS API",
	Long: `possync keeps a point-of-sale terminal usable while disconnected.

Reads are served from a local cache when the server is unreachable;
writes are durably queued and replayed in order once connectivity
returns.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.NewLoader(cfgPath).Load()
		if err != nil {
			return err
		}

		if err := cfg.EnsureDirectories(); err != nil {
			return err
		}

		logger, err = events.NewLogger(&cfg.Log)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		"Config file path (default: possync.json, ~/.config/possync/config.json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Machine-readable JSON output")
}

// newClient builds a wired client for a command invocation.
func newClient() (*client.Client, error) {
	return client.New(cfg, logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
