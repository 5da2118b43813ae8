package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stacklok/toolhive-update-agent/database"
)

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert database migrations",
	Long: `Revert database migrations.

WARNING: Reverting the initial migration drops the agent state, including the
persisted client ID, the initial delay flag and the sync history.

Examples:
  # Migrate down by 1 step
  thv-update-agent migrate down --config config.yaml --num-steps 1 --yes

  # Migrate down all the way
  thv-update-agent migrate down --config config.yaml --yes`,
	RunE: runMigrateDown,
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	connString, display, err := migrationTarget(cmd)
	if err != nil {
		return err
	}

	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}

	prompt := fmt.Sprintf("WARNING: This will migrate %s down ALL steps and drop the agent state. Continue?", display)
	if numSteps > 0 {
		prompt = fmt.Sprintf("WARNING: This will migrate %s down %d step(s) and may drop agent state. Continue?",
			display, numSteps)
	}
	ok, err := confirm(cmd, prompt)
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("Migration cancelled by user")
		return nil
	}

	slog.Info("Reverting database migrations", "database", display, "steps", numSteps)
	if err := database.MigrateDown(connString, numSteps); err != nil {
		return fmt.Errorf("failed to revert migrations: %w", err)
	}

	logMigrationVersion(connString)
	return nil
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		connString, _, err := migrationTarget(cmd)
		if err != nil {
			return err
		}
		version, dirty, err := database.GetVersion(connString)
		if err != nil {
			return fmt.Errorf("failed to get schema version: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version: %d dirty: %t\n", version, dirty)
		return nil
	},
}
