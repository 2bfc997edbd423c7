package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/systmms/pterokeys/internal/audit"
	"github.com/systmms/pterokeys/internal/config"
	dserrors "github.com/systmms/pterokeys/internal/errors"
	"github.com/systmms/pterokeys/internal/store"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand(cfg *config.Config) *cobra.Command {
	var (
		historyLimit   int
		historySince   string
		historyUntil   string
		historyAction  string
		historyActor   int64
		historyFormat  string
		pruneOlderThan time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the audit log",
		Long: `Display audit log entries, newest first.

Entries are read from the configured audit sink: the log table of the
account database, or JSON files under the audit directory.`,
		Example: `  # Show the last 50 entries
  pterokeys history

  # Only regenerations in a date range
  pterokeys history --action USER_API_KEY_REGENERATED --since 2024-01-01 --until 2024-12-31

  # Remove file sink entries older than 90 days
  pterokeys history --prune-older-than 2160h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch historyFormat {
			case "table", "json", "yaml":
			default:
				return dserrors.UserError{
					Message:    fmt.Sprintf("Invalid --format value: %s", historyFormat),
					Suggestion: "Valid values are: table, json, yaml",
				}
			}

			filter := audit.Filter{
				Action:  historyAction,
				ActorID: historyActor,
				Limit:   historyLimit,
			}
			if historySince != "" {
				t, err := time.Parse("2006-01-02", historySince)
				if err != nil {
					return fmt.Errorf("invalid since date format (use YYYY-MM-DD): %w", err)
				}
				filter.Since = t
			}
			if historyUntil != "" {
				t, err := time.Parse("2006-01-02", historyUntil)
				if err != nil {
					return fmt.Errorf("invalid until date format (use YYYY-MM-DD): %w", err)
				}
				// Set to end of day
				filter.Until = t.Add(24*time.Hour - time.Nanosecond)
			}

			if err := loadConfig(cfg); err != nil {
				return err
			}

			if pruneOlderThan > 0 {
				return pruneHistory(cmd.OutOrStdout(), cfg, pruneOlderThan)
			}

			ctx := commandContext(cmd)
			var db *store.DB
			if cfg.Definition.Audit.Sink == config.AuditSinkDatabase {
				var err error
				db, err = openDatabase(ctx, cfg)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()
			}

			sink, err := openAuditSink(cfg, db)
			if err != nil {
				return err
			}

			entries, err := sink.List(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to read audit log: %w", err)
			}

			out := cmd.OutOrStdout()
			switch historyFormat {
			case "json":
				if entries == nil {
					entries = []audit.Entry{}
				}
				return writeJSON(out, entries)
			case "yaml":
				return yaml.NewEncoder(out).Encode(entries)
			default:
				return outputHistoryTable(out, entries)
			}
		},
	}

	cmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum number of entries to show")
	cmd.Flags().StringVar(&historySince, "since", "", "Show entries since date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&historyUntil, "until", "", "Show entries until date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&historyAction, "action", "", "Filter by action, e.g. USER_API_KEY_REGENERATED")
	cmd.Flags().Int64Var(&historyActor, "operator-id", 0, "Filter by operator id")
	cmd.Flags().StringVar(&historyFormat, "format", "table", "Output format: table, json, yaml")
	cmd.Flags().DurationVar(&pruneOlderThan, "prune-older-than", 0, "Delete file sink entries older than this duration instead of listing")

	return cmd
}

func pruneHistory(w io.Writer, cfg *config.Config, olderThan time.Duration) error {
	if cfg.Definition.Audit.Sink != config.AuditSinkFile {
		return dserrors.UserError{
			Message:    "Pruning is only supported for the file audit sink",
			Suggestion: "Remove old rows from the log table with your database tooling",
		}
	}

	sink := newFileSink(cfg)
	removed, err := sink.Prune(olderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Removed %d audit entries from %s\n", removed, sink.Dir())
	return nil
}

func outputHistoryTable(out io.Writer, entries []audit.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No audit entries found matching criteria")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)

	fmt.Fprintln(w, "TIMESTAMP\tACTION\tOPERATOR\tUSER\tID")
	fmt.Fprintln(w, "---------\t------\t--------\t----\t--")

	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			entry.Timestamp.Local().Format("2006-01-02 15:04:05"),
			entry.Action,
			formatActor(entry.ActorID, entry.ActorEmail),
			formatSubject(entry.Details),
			entry.ID,
		)
	}

	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nShowing %d entries\n", len(entries))
	return nil
}

func formatActor(id int64, email string) string {
	if email == "" {
		return fmt.Sprintf("#%d", id)
	}
	return fmt.Sprintf("%s (#%d)", email, id)
}

// formatSubject renders the affected user from entry details.
func formatSubject(details map[string]interface{}) string {
	id, hasID := details["user_id"]
	email, _ := details["user_email"].(string)
	switch {
	case hasID && email != "":
		return fmt.Sprintf("%s (#%v)", email, id)
	case hasID:
		return fmt.Sprintf("#%v", id)
	case email != "":
		return email
	default:
		return "-"
	}
}
