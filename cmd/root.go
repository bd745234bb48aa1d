// Package cmd defines the chatcart CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatcart",
	Short: "chatcart - conversational fulfillment core for chat commerce",
	Long: `chatcart answers customer messages for chat-commerce tenants: it
resolves references against recently shown items, retrieves supporting
facts, and routes generation across failover-ordered model providers.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
