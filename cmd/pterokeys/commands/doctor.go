package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/pterokeys/internal/audit"
	"github.com/systmms/pterokeys/internal/config"
	dserrors "github.com/systmms/pterokeys/internal/errors"
	"github.com/systmms/pterokeys/internal/store"
)

// CheckResult is the outcome of a single doctor check.
type CheckResult struct {
	Name       string
	Healthy    bool
	Message    string
	Suggestion string
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check panel, database and audit connectivity",
		Long: `Verify that pterokeys is properly configured.

This command checks:
- Configuration file validity
- Panel reachability and application API key
- Database connectivity and schema migrations
- Audit sink readability
- Notification configuration`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Logger.Info("Checking pterokeys configuration...")
			if err := loadConfig(cfg); err != nil {
				cfg.Logger.Error("Configuration error: %v", err)
				return err
			}
			cfg.Logger.Info("Configuration loaded successfully")

			ctx := commandContext(cmd)
			results := runChecks(ctx, cfg)
			displayCheckResults(cmd.OutOrStdout(), results)

			failed := 0
			for _, r := range results {
				if !r.Healthy {
					failed++
				}
			}
			if failed > 0 {
				return dserrors.UserError{
					Message:    fmt.Sprintf("%d of %d checks failed", failed, len(results)),
					Suggestion: "Fix the failing checks above and run 'pterokeys doctor' again",
				}
			}
			return nil
		},
	}

	return cmd
}

func runChecks(ctx context.Context, cfg *config.Config) []CheckResult {
	results := []CheckResult{checkPanel(ctx, cfg)}

	var db *store.DB
	if cfg.Definition.Database != nil {
		var dbResult CheckResult
		db, dbResult = checkDatabase(ctx, cfg)
		results = append(results, dbResult)
		if db != nil {
			defer func() { _ = db.Close() }()
			results = append(results, checkMigrations(ctx, db))
		}
	}

	results = append(results, checkAuditSink(ctx, cfg, db))

	if _, err := newNotifier(ctx, cfg, nil); err != nil {
		results = append(results, failed("notifications", err))
	} else {
		notifCfg := cfg.Definition.Notifications
		msg := fmt.Sprintf("%d configured", len(notifCfg.Webhooks))
		if notifCfg.Slack != nil {
			msg += ", slack"
		}
		results = append(results, CheckResult{Name: "notifications", Healthy: true, Message: msg})
	}

	return results
}

func checkPanel(ctx context.Context, cfg *config.Config) CheckResult {
	client, token, err := newPanelClient(cfg)
	if err != nil {
		return failed("panel", err)
	}
	defer token.Destroy()

	if err := client.Ping(ctx); err != nil {
		return failed("panel", dserrors.PanelError("ping", err))
	}
	return CheckResult{Name: "panel", Healthy: true, Message: cfg.Definition.Panel.URL}
}

func checkDatabase(ctx context.Context, cfg *config.Config) (*store.DB, CheckResult) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, failed("database", err)
	}
	return db, CheckResult{Name: "database", Healthy: true, Message: db.Driver()}
}

func checkMigrations(ctx context.Context, db *store.DB) CheckResult {
	migrations, err := db.MigrationStatus(ctx)
	if err != nil {
		return failed("migrations", err)
	}

	pending := 0
	for _, m := range migrations {
		if !m.Applied {
			pending++
		}
	}
	if pending > 0 {
		return CheckResult{
			Name:       "migrations",
			Message:    fmt.Sprintf("%d pending", pending),
			Suggestion: "Run 'pterokeys migrate up'",
		}
	}
	return CheckResult{Name: "migrations", Healthy: true, Message: fmt.Sprintf("%d applied", len(migrations))}
}

func checkAuditSink(ctx context.Context, cfg *config.Config, db *store.DB) CheckResult {
	name := "audit (" + cfg.Definition.Audit.Sink + ")"

	if cfg.Definition.Audit.Sink == config.AuditSinkDatabase && db == nil {
		return CheckResult{Name: name, Message: "database unavailable", Suggestion: "Fix the database check first"}
	}

	sink, err := openAuditSink(cfg, db)
	if err != nil {
		return failed(name, err)
	}
	if _, err := sink.List(ctx, audit.Filter{Limit: 1}); err != nil {
		return failed(name, err)
	}

	msg := "readable"
	if fs, ok := sink.(*audit.FileSink); ok {
		msg = fs.Dir()
	}
	return CheckResult{Name: name, Healthy: true, Message: msg}
}

func failed(name string, err error) CheckResult {
	r := CheckResult{Name: name, Message: err.Error()}

	var ue dserrors.UserError
	var ce dserrors.ConfigError
	switch {
	case errors.As(err, &ue):
		r.Message = ue.Message
		if ue.Err != nil {
			r.Message += ": " + ue.Err.Error()
		}
		r.Suggestion = ue.Suggestion
	case errors.As(err, &ce):
		r.Suggestion = ce.Suggestion
	}
	return r
}

func displayCheckResults(out io.Writer, results []CheckResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	fmt.Fprintln(w, "CHECK\tSTATUS\tDETAIL")
	for _, r := range results {
		status := "ok"
		if !r.Healthy {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, status, r.Message)
		if r.Suggestion != "" {
			fmt.Fprintf(w, "\t\t💡 %s\n", r.Suggestion)
		}
	}
}
