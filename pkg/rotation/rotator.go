package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCouldNotCreateKey is returned (wrapped) by a KeyProvisioner when the
// panel refuses to create a client API key.
var ErrCouldNotCreateKey = errors.New("could not create pterodactyl client api key")

// Action identifies an audit log action.
type Action string

// ActionUserAPIKeyRegenerated is recorded after every successful regeneration.
const ActionUserAPIKeyRegenerated Action = "USER_API_KEY_REGENERATED"

// Account is a panel account that may be linked to a Pterodactyl user.
type Account struct {
	ID    int64
	Email string

	// PanelUserID is the Pterodactyl user id; zero or negative means unlinked.
	PanelUserID int64

	// APIKey is the current client API key; empty means none.
	APIKey string
}

// Linked reports whether the account has a Pterodactyl identity.
func (a *Account) Linked() bool {
	return a != nil && a.PanelUserID > 0
}

// Operator is the user performing the regeneration.
type Operator struct {
	ID    int64
	Email string
}

// KeyProvisioner mints client API keys on the panel.
type KeyProvisioner interface {
	CreateClientAPIKey(ctx context.Context, account Account) (string, error)
}

// KeyRevoker deletes client API keys through the panel application API.
type KeyRevoker interface {
	DeleteAPIKeyForUser(ctx context.Context, panelUserID int64, identifier string) error
}

// AccountStore durably commits an account's new key.
type AccountStore interface {
	UpdateAPIKey(ctx context.Context, accountID int64, apiKey string) error
}

// AuditLogger records operator actions.
type AuditLogger interface {
	LogAction(ctx context.Context, actor Operator, action Action, details map[string]any) error
}

// Logger is the logging sink used by the rotator.
type Logger interface {
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Recorder receives rotation metrics.
type Recorder interface {
	ObserveRotation(outcome string, duration time.Duration)
	RevocationFailed()
}

// Rotator regenerates client API keys: it creates the new key, commits it,
// deletes the previous key on a best-effort basis and records an audit entry.
//
// Rotator holds no per-account state. Callers must serialize rotations of the
// same account themselves.
type Rotator struct {
	provisioner KeyProvisioner
	revoker     KeyRevoker
	store       AccountStore
	audit       AuditLogger
	logger      Logger
	recorder    Recorder
	now         func() time.Time
}

// Option configures optional Rotator dependencies.
type Option func(*Rotator)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(rt *Rotator) {
		rt.recorder = r
	}
}

// NewRotator creates a Rotator from its collaborators.
func NewRotator(provisioner KeyProvisioner, revoker KeyRevoker, store AccountStore, audit AuditLogger, logger Logger, opts ...Option) *Rotator {
	r := &Rotator{
		provisioner: provisioner,
		revoker:     revoker,
		store:       store,
		audit:       audit,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rotate regenerates the client API key of account on behalf of operator.
// It never returns nil and never panics; every failure maps to a Result.
// On Success account.APIKey holds the new key.
func (r *Rotator) Rotate(ctx context.Context, account *Account, operator Operator) (result Result) {
	start := r.now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Failed to regenerate API key: user_id=%d error=%v", accountID(account), p)
			result = UnexpectedError{Detail: fmt.Sprint(p)}
		}
		if r.recorder != nil {
			r.recorder.ObserveRotation(result.Outcome(), r.now().Sub(start))
		}
	}()

	if !account.Linked() {
		return NotLinked{}
	}

	oldKey := account.APIKey

	newKey, err := r.provisioner.CreateClientAPIKey(ctx, *account)
	if err != nil {
		if errors.Is(err, ErrCouldNotCreateKey) {
			return ProvisioningFailed{}
		}
		return r.unexpected(account, err)
	}

	if err := r.store.UpdateAPIKey(ctx, account.ID, newKey); err != nil {
		return r.unexpected(account, fmt.Errorf("failed to store new API key: %w", err))
	}
	account.APIKey = newKey

	if oldKey != "" {
		r.revoke(ctx, account, oldKey)
	}

	err = r.audit.LogAction(ctx, operator, ActionUserAPIKeyRegenerated, map[string]any{
		"user_id":    account.ID,
		"user_email": account.Email,
	})
	if err != nil {
		return r.unexpected(account, err)
	}

	return Success{
		MaskedKey: MaskKey(newKey),
		FullKey:   newKey,
	}
}

// revoke deletes the previous key. The new key is already committed, so a
// failure here is only logged.
func (r *Rotator) revoke(ctx context.Context, account *Account, oldKey string) {
	err := r.revoker.DeleteAPIKeyForUser(ctx, account.PanelUserID, KeyIdentifier(oldKey))
	if err == nil {
		return
	}

	r.logger.Warn("Failed to delete old API key from Pterodactyl: user_id=%d error=%s", account.ID, err.Error())
	if r.recorder != nil {
		r.recorder.RevocationFailed()
	}
}

func (r *Rotator) unexpected(account *Account, err error) Result {
	detail := UnknownErrorDetail
	if err != nil && err.Error() != "" {
		detail = err.Error()
	}
	r.logger.Error("Failed to regenerate API key: user_id=%d error=%s", account.ID, detail)
	return UnexpectedError{Detail: detail}
}

func accountID(a *Account) int64 {
	if a == nil {
		return 0
	}
	return a.ID
}
