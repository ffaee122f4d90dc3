package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/logger"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply pending schema migrations and list the applied ones.
PostgreSQL migrations are versioned SQL files; SQLite schemas are migrated
automatically whenever the database is opened.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	st, err := openStorage(ctx, cfg, logger.Discard())
	if err != nil {
		return err
	}
	defer st.close()

	if st.pool == nil {
		fmt.Printf("SQLite schema at %s is up to date\n", cfg.Database.SQLitePath)
		return nil
	}

	applied, err := st.pool.MigrationsApplied(ctx)
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	fmt.Printf("Applied migrations (%d):\n", len(applied))
	for _, name := range applied {
		fmt.Printf("  %s\n", name)
	}
	return nil
}
