package app

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stacklok/toolhive-update-agent/database"
	"github.com/stacklok/toolhive-update-agent/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool",
	Long: `Database migration tool for the agent's PostgreSQL state schema.
Use with 'up', 'down' or 'version' subcommands. Only needed when storage.type is database.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Usage()
	},
}

func init() {
	migrateCmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	migrateCmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate (0 = all)")
	migrateCmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := migrateCmd.MarkPersistentFlagRequired("config"); err != nil {
		panic(err)
	}

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

// migrationTarget loads the configuration and returns the connection string
// together with a display form that leaves the password out.
func migrationTarget(cmd *cobra.Command) (connString, display string, err error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", "", fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return "", "", fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.GetStorageType() != config.StorageTypeDatabase || cfg.Storage.Database == nil {
		return "", "", fmt.Errorf("database storage is not configured in %s", configPath)
	}

	db := cfg.Storage.Database
	connString, err = db.GetConnectionString()
	if err != nil {
		return "", "", fmt.Errorf("failed to build connection string: %w", err)
	}
	return connString, fmt.Sprintf("%s@%s:%d/%s", db.User, db.Host, db.Port, db.Database), nil
}

// confirm asks prompt on the command's output and reads a yes/no answer from its input.
// It returns true straight away when --yes was given.
func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return false, fmt.Errorf("failed to get yes flag: %w", err)
	}
	if yes {
		return true, nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return false, fmt.Errorf("input is not a terminal, pass --yes to run non-interactively")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s (yes/no): ", prompt)
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read user input: %w", err)
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "yes" || response == "y", nil
}

func logMigrationVersion(connString string) {
	version, dirty, err := database.GetVersion(connString)
	switch {
	case err != nil:
		slog.Warn("Unable to get migration version", "error", err)
	case dirty:
		slog.Warn("Database is in a dirty state", "version", version)
	default:
		slog.Info("Current schema version", "version", version)
	}
}
