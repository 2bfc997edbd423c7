package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/systmms/pterokeys/pkg/rotation"
)

// ErrAccountNotFound is returned when no account matches the lookup.
var ErrAccountNotFound = errors.New("account not found")

const selectAccount = `SELECT id, email, pterodactyl_user_id, pterodactyl_user_api_key FROM users`

// AccountStore reads panel accounts and commits regenerated keys.
// It satisfies rotation.AccountStore.
type AccountStore struct {
	db *DB
}

// NewAccountStore creates an AccountStore.
func NewAccountStore(db *DB) *AccountStore {
	return &AccountStore{db: db}
}

// GetAccount loads an account by id.
func (s *AccountStore) GetAccount(ctx context.Context, id int64) (*rotation.Account, error) {
	row := s.db.db.QueryRowContext(ctx, s.db.rebind(selectAccount+` WHERE id = ?`), id)
	return scanAccount(row)
}

// GetAccountByEmail loads an account by email address.
func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (*rotation.Account, error) {
	row := s.db.db.QueryRowContext(ctx, s.db.rebind(selectAccount+` WHERE email = ?`), email)
	return scanAccount(row)
}

// UpdateAPIKey stores apiKey as the account's current client key.
func (s *AccountStore) UpdateAPIKey(ctx context.Context, accountID int64, apiKey string) error {
	res, err := s.db.db.ExecContext(ctx,
		s.db.rebind(`UPDATE users SET pterodactyl_user_api_key = ? WHERE id = ?`),
		apiKey, accountID,
	)
	if err != nil {
		return fmt.Errorf("update api key for user %d: %w", accountID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key for user %d: %w", accountID, err)
	}
	if n == 0 {
		return fmt.Errorf("update api key for user %d: %w", accountID, ErrAccountNotFound)
	}
	return nil
}

// CreateAccount inserts an account. Used for seeding and tests; the panel
// normally owns the users table.
func (s *AccountStore) CreateAccount(ctx context.Context, account rotation.Account) error {
	var panelID sql.NullInt64
	if account.PanelUserID > 0 {
		panelID = sql.NullInt64{Int64: account.PanelUserID, Valid: true}
	}
	var apiKey sql.NullString
	if account.APIKey != "" {
		apiKey = sql.NullString{String: account.APIKey, Valid: true}
	}

	_, err := s.db.db.ExecContext(ctx,
		s.db.rebind(`INSERT INTO users (id, email, pterodactyl_user_id, pterodactyl_user_api_key) VALUES (?, ?, ?, ?)`),
		account.ID, account.Email, panelID, apiKey,
	)
	if err != nil {
		return fmt.Errorf("insert user %d: %w", account.ID, err)
	}
	return nil
}

func scanAccount(row *sql.Row) (*rotation.Account, error) {
	var (
		account rotation.Account
		panelID sql.NullInt64
		apiKey  sql.NullString
	)
	if err := row.Scan(&account.ID, &account.Email, &panelID, &apiKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if panelID.Valid {
		account.PanelUserID = panelID.Int64
	}
	if apiKey.Valid {
		account.APIKey = apiKey.String
	}
	return &account, nil
}
