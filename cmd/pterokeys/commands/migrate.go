package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/pterokeys/internal/config"
)

// NewMigrateCommand creates the migrate command and its subcommands.
func NewMigrateCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the account database schema",
		Long: `Apply or inspect the embedded schema migrations for the users and log tables.

Deployments that share the panel's database usually already have these
tables; the migrations are idempotent and only create what is missing.`,
	}

	cmd.AddCommand(
		newMigrateUpCommand(cfg),
		newMigrateStatusCommand(cfg),
	)

	return cmd
}

func newMigrateUpCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}

			ctx := commandContext(cmd)
			db, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to apply migrations: %w", err)
			}

			cfg.Logger.Info("Database schema is up to date")
			return nil
		},
	}
}

func newMigrateStatusCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which migrations are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}

			ctx := commandContext(cmd)
			db, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			migrations, err := db.MigrationStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to read migration status: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
			for _, m := range migrations {
				status := "pending"
				if m.Applied {
					status = "applied"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Name, status)
			}
			return w.Flush()
		},
	}
}
