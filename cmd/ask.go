package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chatcart/chatcart/internal/app"
	"github.com/chatcart/chatcart/internal/config"
	"github.com/chatcart/chatcart/internal/engine"
)

var (
	askTenant       string
	askConversation string
)

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Run one turn against the fulfillment core",
	Long: `ask sends a single customer message through the full pipeline —
reference resolution, retrieval, composition, and routed generation —
and prints the reply. Useful for smoke-testing a tenant's configuration.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askTenant, "tenant", "dev", "tenant id to run the turn under")
	askCmd.Flags().StringVar(&askConversation, "conversation", "dev-conversation", "conversation id")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setting up application: %w", err)
	}
	defer func() { _ = a.Close() }()

	result, err := a.Engine.HandleTurn(ctx, engine.Turn{
		TenantID:       askTenant,
		ConversationID: askConversation,
		Utterance:      strings.Join(args, " "),
	})
	if err != nil {
		// Exhaustion still carries deliverable fallback text.
		if result != nil && result.ReplyText != "" {
			cmd.Println(result.ReplyText)
		}
		return err
	}

	cmd.Println(result.ReplyText)
	if result.ProviderUsed != "" {
		cmd.Printf("\n(provider=%s attempts=%d resolution=%s)\n",
			result.ProviderUsed, result.Attempts, result.Resolution.Outcome)
	}
	return nil
}
