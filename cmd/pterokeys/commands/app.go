package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/pterokeys/internal/audit"
	"github.com/systmms/pterokeys/internal/config"
	dserrors "github.com/systmms/pterokeys/internal/errors"
	"github.com/systmms/pterokeys/internal/logging"
	"github.com/systmms/pterokeys/internal/metrics"
	"github.com/systmms/pterokeys/internal/notify"
	"github.com/systmms/pterokeys/internal/pterodactyl"
	"github.com/systmms/pterokeys/internal/secure"
	"github.com/systmms/pterokeys/internal/store"
	"github.com/systmms/pterokeys/pkg/rotation"
)

// app holds the collaborators shared by regenerate and serve.
type app struct {
	cfg      *config.Config
	db       *store.DB
	accounts *store.AccountStore
	panel    *pterodactyl.Client
	panelKey *secure.Token
	notifier *notify.Manager
	audit    *audit.Logger
	metrics  *metrics.Metrics
	rotator  *rotation.Rotator
}

// newApp wires the rotator from a loaded configuration. The notification
// worker runs until Close.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.NewWithRuntime()}

	var err error
	a.panel, a.panelKey, err = newPanelClient(cfg)
	if err != nil {
		return nil, err
	}

	a.db, err = openDatabase(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.accounts = store.NewAccountStore(a.db)

	sink, err := openAuditSink(cfg, a.db)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.notifier, err = newNotifier(ctx, cfg, a.metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.notifier.Start(ctx)

	a.audit = audit.NewLogger(sink, a.notifier)

	panelCfg := cfg.Definition.Panel
	keys := pterodactyl.NewKeyService(a.panel, panelCfg.KeyDescription, panelCfg.AllowedIPs)
	a.rotator = rotation.NewRotator(keys, a.panel, a.accounts, a.audit, cfg.Logger,
		rotation.WithRecorder(a.metrics))

	return a, nil
}

// Close flushes queued notifications and releases connections and secrets.
func (a *app) Close() {
	if a.notifier != nil {
		a.notifier.Stop()
		if dropped := a.notifier.DroppedCount(); dropped > 0 {
			a.cfg.Logger.Warn("Dropped %d notifications: queue full", dropped)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.cfg.Logger.Warn("Failed to close database: %v", err)
		}
	}
	if a.panelKey != nil {
		a.panelKey.Destroy()
	}
}

func newPanelClient(cfg *config.Config) (*pterodactyl.Client, *secure.Token, error) {
	panelCfg := cfg.Definition.Panel

	key, err := config.ResolveSecret("panel.application_key", panelCfg.ApplicationKey)
	if err != nil {
		return nil, nil, err
	}
	token, err := secure.NewToken(key)
	if err != nil {
		return nil, nil, dserrors.ConfigError{
			Field:      "panel.application_key",
			Message:    "application API key is empty",
			Suggestion: "Create an application API key in the panel admin area",
		}
	}

	client, err := pterodactyl.NewClient(pterodactyl.Config{
		BaseURL:   panelCfg.URL,
		Token:     token,
		Timeout:   panelCfg.Timeout(),
		RetryMax:  panelCfg.Retries,
		RateLimit: panelCfg.RateLimit,
	})
	if err != nil {
		token.Destroy()
		return nil, nil, dserrors.ConfigError{
			Field:   "panel.url",
			Value:   panelCfg.URL,
			Message: err.Error(),
		}
	}

	return client, token, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*store.DB, error) {
	dbCfg, err := cfg.RequireDatabase()
	if err != nil {
		return nil, err
	}

	dsn, err := config.ResolveSecret("database.dsn", dbCfg.DSN)
	if err != nil {
		return nil, err
	}

	cfg.Logger.Debug("Opening %s database: %s", dbCfg.Driver, logging.Secret(dsn))
	db, err := store.Open(ctx, dbCfg.Driver, dsn)
	if err != nil {
		// Driver errors may echo the DSN, password included.
		return nil, dserrors.UserError{
			Message:    "Failed to open database",
			Details:    logging.Redact(err.Error(), []string{dsn}),
			Suggestion: "Check database.driver and database.dsn in your configuration",
			Err:        err,
		}
	}
	return db, nil
}

// openAuditSink returns the configured sink. db may be nil for the file sink.
func openAuditSink(cfg *config.Config, db *store.DB) (audit.Sink, error) {
	if cfg.Definition.Audit.Sink == config.AuditSinkDatabase {
		if db == nil {
			return nil, fmt.Errorf("database audit sink requires an open database")
		}
		return store.NewLogStore(db), nil
	}
	return newFileSink(cfg), nil
}

func newFileSink(cfg *config.Config) *audit.FileSink {
	dir := cfg.Definition.Audit.Dir
	if dir == "" {
		dir = audit.DefaultDir()
	}
	return audit.NewFileSink(dir)
}

func newNotifier(ctx context.Context, cfg *config.Config, drops notify.DropRecorder) (*notify.Manager, error) {
	notifCfg := cfg.Definition.Notifications
	manager := notify.NewManager(notifCfg.QueueSize,
		notify.WithLogger(cfg.Logger),
		notify.WithDropRecorder(drops),
	)

	for i, wh := range notifCfg.Webhooks {
		provider := notify.NewWebhookProvider(notify.WebhookConfig{
			Name:        wh.Name,
			URL:         wh.URL,
			Method:      wh.Method,
			Headers:     wh.Headers,
			Actions:     wh.Actions,
			MaxAttempts: wh.MaxAttempts,
			Backoff:     wh.Backoff,
			Timeout:     time.Duration(wh.TimeoutMs) * time.Millisecond,
		})
		if err := provider.Validate(ctx); err != nil {
			return nil, dserrors.ConfigError{
				Field:   fmt.Sprintf("notifications.webhooks[%d]", i),
				Value:   wh.URL,
				Message: err.Error(),
			}
		}
		manager.RegisterProvider(provider)
	}

	if slack := notifCfg.Slack; slack != nil {
		webhookURL, err := config.ResolveSecret("notifications.slack.webhook_url", slack.WebhookURL)
		if err != nil {
			return nil, err
		}
		provider := notify.NewSlackProvider(notify.SlackConfig{
			WebhookURL: webhookURL,
			Channel:    slack.Channel,
			Actions:    slack.Actions,
			Mentions:   slack.Mentions,
		})
		if err := provider.Validate(ctx); err != nil {
			return nil, dserrors.ConfigError{
				Field:   "notifications.slack.webhook_url",
				Message: err.Error(),
			}
		}
		manager.RegisterProvider(provider)
	}

	return manager, nil
}

// loadConfig loads the configuration file unless a definition is already set.
func loadConfig(cfg *config.Config) error {
	if cfg.Definition != nil {
		return nil
	}
	return cfg.Load()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
