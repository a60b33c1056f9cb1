package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return err
	}
	version, err := database.MigrationVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Database at migration version %d\n", version)
	return nil
}
