package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chatcart/chatcart/internal/app"
	"github.com/chatcart/chatcart/internal/config"
	"github.com/chatcart/chatcart/internal/log"
	"github.com/chatcart/chatcart/internal/provider"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show the configured provider lineup in routing order",
	Long: `providers prints the configured model providers in the order the
router tries them, with the capabilities that decide eligibility per turn.`,
	RunE: runProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

func runProviders(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	// The lineup is decided by configuration; no Genkit session is needed
	// to display it.
	r, err := app.NewRouter(nil, cfg, log.New(log.Config{Level: slog.LevelWarn}))
	if err != nil {
		return fmt.Errorf("building router: %w", err)
	}

	for i, desc := range r.Providers() {
		cmd.Printf("%d. %s\n", i+1, desc.Name)
		cmd.Printf("   Model:      %s\n", desc.Model)
		cmd.Printf("   Priority:   %d\n", desc.Priority)
		cmd.Printf("   Structured: %v\n", desc.Capabilities.Has(provider.CapStructuredOutput))
	}
	return nil
}
