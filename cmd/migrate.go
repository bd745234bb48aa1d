package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatcart/chatcart/db"
	"github.com/chatcart/chatcart/internal/config"
	"github.com/chatcart/chatcart/internal/log"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := log.New(log.Config{})
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return err
	}
	cmd.Println("migrations applied")
	return nil
}
