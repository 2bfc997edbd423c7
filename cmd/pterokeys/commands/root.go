package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/pterokeys/internal/config"
	"github.com/systmms/pterokeys/internal/logging"
)

// NewRootCommand builds the pterokeys command tree around cfg. The global
// flags are copied into cfg before any subcommand runs.
func NewRootCommand(cfg *config.Config) *cobra.Command {
	var (
		configFile string
		noColor    bool
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:   "pterokeys",
		Short: "Regenerate Pterodactyl client API keys",
		Long: `pterokeys regenerates the client API key of panel accounts linked to a
Pterodactyl user, records every regeneration in the audit log and deletes
the key it replaces.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			if cfg.Logger == nil {
				cfg.Logger = logging.NewWithWriter(cmd.ErrOrStderr(), debug, noColor)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		NewRegenerateCommand(cfg),
		NewHistoryCommand(cfg),
		NewMigrateCommand(cfg),
		NewServeCommand(cfg),
		NewDoctorCommand(cfg),
		NewCompletionCommand(cfg),
	)

	return rootCmd
}
