package fakes

import (
	"context"
	"sync"
	"time"

	"github.com/systmms/pterokeys/pkg/rotation"
)

// FakeProvisioner provides a mock implementation of rotation.KeyProvisioner.
type FakeProvisioner struct {
	mu sync.Mutex

	// Key is returned when CreateFunc is nil.
	Key        string
	CreateFunc func(ctx context.Context, account rotation.Account) (string, error)

	Calls []rotation.Account
}

// NewFakeProvisioner creates a provisioner that always returns key.
func NewFakeProvisioner(key string) *FakeProvisioner {
	return &FakeProvisioner{Key: key}
}

// CreateClientAPIKey records the call and returns the configured key.
func (f *FakeProvisioner) CreateClientAPIKey(ctx context.Context, account rotation.Account) (string, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, account)
	f.mu.Unlock()

	if f.CreateFunc != nil {
		return f.CreateFunc(ctx, account)
	}
	return f.Key, nil
}

// RevokeCall captures the arguments of a DeleteAPIKeyForUser call.
type RevokeCall struct {
	PanelUserID int64
	Identifier  string
}

// FakeRevoker provides a mock implementation of rotation.KeyRevoker.
type FakeRevoker struct {
	mu sync.Mutex

	DeleteFunc func(ctx context.Context, panelUserID int64, identifier string) error

	Calls []RevokeCall
}

// DeleteAPIKeyForUser records the call.
func (f *FakeRevoker) DeleteAPIKeyForUser(ctx context.Context, panelUserID int64, identifier string) error {
	f.mu.Lock()
	f.Calls = append(f.Calls, RevokeCall{PanelUserID: panelUserID, Identifier: identifier})
	f.mu.Unlock()

	if f.DeleteFunc != nil {
		return f.DeleteFunc(ctx, panelUserID, identifier)
	}
	return nil
}

// FakeAccountStore provides an in-memory rotation.AccountStore.
type FakeAccountStore struct {
	mu sync.Mutex

	// Keys holds the committed key per account id.
	Keys       map[int64]string
	UpdateFunc func(ctx context.Context, accountID int64, apiKey string) error

	Writes int
}

// NewFakeAccountStore creates a store seeded with the given keys.
func NewFakeAccountStore(keys map[int64]string) *FakeAccountStore {
	if keys == nil {
		keys = make(map[int64]string)
	}
	return &FakeAccountStore{Keys: keys}
}

// UpdateAPIKey commits the key unless UpdateFunc fails.
func (f *FakeAccountStore) UpdateAPIKey(ctx context.Context, accountID int64, apiKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Writes++
	if f.UpdateFunc != nil {
		if err := f.UpdateFunc(ctx, accountID, apiKey); err != nil {
			return err
		}
	}
	f.Keys[accountID] = apiKey
	return nil
}

// Key returns the committed key for an account.
func (f *FakeAccountStore) Key(accountID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Keys[accountID]
}

// AuditCall captures the arguments of a LogAction call.
type AuditCall struct {
	Actor   rotation.Operator
	Action  rotation.Action
	Details map[string]any
}

// FakeAuditLogger provides a mock implementation of rotation.AuditLogger.
type FakeAuditLogger struct {
	mu sync.Mutex

	LogFunc func(ctx context.Context, actor rotation.Operator, action rotation.Action, details map[string]any) error

	Calls []AuditCall
}

// LogAction records the call.
func (f *FakeAuditLogger) LogAction(ctx context.Context, actor rotation.Operator, action rotation.Action, details map[string]any) error {
	f.mu.Lock()
	f.Calls = append(f.Calls, AuditCall{Actor: actor, Action: action, Details: details})
	f.mu.Unlock()

	if f.LogFunc != nil {
		return f.LogFunc(ctx, actor, action, details)
	}
	return nil
}

// FakeRecorder provides a mock implementation of rotation.Recorder.
type FakeRecorder struct {
	mu sync.Mutex

	Outcomes    []string
	Revocations int
}

// ObserveRotation records the outcome.
func (f *FakeRecorder) ObserveRotation(outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Outcomes = append(f.Outcomes, outcome)
}

// RevocationFailed counts revocation failures.
func (f *FakeRecorder) RevocationFailed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Revocations++
}
