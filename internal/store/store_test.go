package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/pterokeys/internal/audit"
	"github.com/systmms/pterokeys/pkg/rotation"
)

func newMockDB(t *testing.T, driver string) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return New(db, driver), mock
}

func TestRebind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		driver string
		query  string
		want   string
	}{
		{DriverPostgres, "UPDATE users SET k = ? WHERE id = ?", "UPDATE users SET k = $1 WHERE id = $2"},
		{DriverMySQL, "UPDATE users SET k = ? WHERE id = ?", "UPDATE users SET k = ? WHERE id = ?"},
		{DriverSQLite, "SELECT 1", "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, New(nil, tt.driver).rebind(tt.query))
		})
	}
}

func TestMySQLDSN(t *testing.T) {
	t.Parallel()

	dsn, err := mysqlDSN("panel:secret@tcp(db:3306)/pteroca")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "clientFoundRows=true")

	_, err = mysqlDSN("not a dsn")
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "file.db?x=1", sqliteDSN("file.db?x=1"))

	dsn := sqliteDSN("/var/lib/pterokeys/panel.db")
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_busy_timeout=5000")

	mem := sqliteDSN(":memory:")
	assert.NotContains(t, mem, "_journal_mode")
	assert.Contains(t, mem, "_foreign_keys=on")
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "oracle", "dsn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestAccountStore_GetAccount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		rows      *sqlmock.Rows
		want      *rotation.Account
		wantError error
	}{
		{
			name: "linked with key",
			rows: sqlmock.NewRows([]string{"id", "email", "pterodactyl_user_id", "pterodactyl_user_api_key"}).
				AddRow(7, "player@example.com", 42, "OLD1234567890123secret"),
			want: &rotation.Account{ID: 7, Email: "player@example.com", PanelUserID: 42, APIKey: "OLD1234567890123secret"},
		},
		{
			name: "unlinked",
			rows: sqlmock.NewRows([]string{"id", "email", "pterodactyl_user_id", "pterodactyl_user_api_key"}).
				AddRow(7, "player@example.com", nil, nil),
			want: &rotation.Account{ID: 7, Email: "player@example.com"},
		},
		{
			name:      "missing",
			rows:      sqlmock.NewRows([]string{"id", "email", "pterodactyl_user_id", "pterodactyl_user_api_key"}),
			wantError: ErrAccountNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, mock := newMockDB(t, DriverPostgres)
			mock.ExpectQuery(regexp.QuoteMeta(selectAccount + " WHERE id = $1")).
				WithArgs(int64(7)).
				WillReturnRows(tt.rows)

			got, err := NewAccountStore(db).GetAccount(context.Background(), 7)
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAccountStore_GetAccountByEmail(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t, DriverMySQL)
	mock.ExpectQuery(regexp.QuoteMeta(selectAccount + " WHERE email = ?")).
		WithArgs("player@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "pterodactyl_user_id", "pterodactyl_user_api_key"}).
			AddRow(7, "player@example.com", 42, nil))

	got, err := NewAccountStore(db).GetAccountByEmail(context.Background(), "player@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.PanelUserID)
	assert.Empty(t, got.APIKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStore_UpdateAPIKey(t *testing.T) {
	t.Parallel()

	const update = "UPDATE users SET pterodactyl_user_api_key = $1 WHERE id = $2"

	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantError error
		errorText string
	}{
		{
			name: "updated",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(update)).
					WithArgs("NEWKEY", int64(7)).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "no such account",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(update)).
					WithArgs("NEWKEY", int64(7)).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantError: ErrAccountNotFound,
		},
		{
			name: "exec failure",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(update)).
					WillReturnError(errors.New("connection lost"))
			},
			errorText: "connection lost",
		},
		{
			name: "rows affected failure",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(update)).
					WillReturnResult(sqlmock.NewErrorResult(errors.New("driver cannot count")))
			},
			errorText: "driver cannot count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, mock := newMockDB(t, DriverPostgres)
			tt.setupMock(mock)

			err := NewAccountStore(db).UpdateAPIKey(context.Background(), 7, "NEWKEY")
			switch {
			case tt.wantError != nil:
				assert.ErrorIs(t, err, tt.wantError)
			case tt.errorText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorText)
			default:
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLogStore_Append(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t, DriverPostgres)
	ts := time.Date(2025, 12, 29, 9, 34, 33, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO log (id, action_id, user_id, user_email, details, created_at) VALUES ($1, $2, $3, $4, $5, $6)")).
		WithArgs("e1", "USER_API_KEY_REGENERATED", int64(1), "admin@example.com", `{"user_id":42}`, ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewLogStore(db).Append(context.Background(), audit.Entry{
		ID:         "e1",
		Timestamp:  ts,
		Action:     "USER_API_KEY_REGENERATED",
		ActorID:    1,
		ActorEmail: "admin@example.com",
		Details:    map[string]interface{}{"user_id": 42},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogStore_ListBuildsFilter(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t, DriverPostgres)
	since := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	ts := time.Date(2025, 12, 29, 9, 34, 33, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, action_id, user_id, user_email, details, created_at FROM log WHERE UPPER(action_id) = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT 5",
	)).
		WithArgs("USER_API_KEY_REGENERATED", since).
		WillReturnRows(sqlmock.NewRows([]string{"id", "action_id", "user_id", "user_email", "details", "created_at"}).
			AddRow("e1", "USER_API_KEY_REGENERATED", 1, "admin@example.com", `{"user_email":"player@example.com"}`, ts).
			AddRow("e0", "USER_API_KEY_REGENERATED", 1, "admin@example.com", "null", ts.Add(-time.Hour)))

	entries, err := NewLogStore(db).List(context.Background(), audit.Filter{
		Action: "user_api_key_regenerated",
		Since:  since,
		Limit:  5,
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "player@example.com", entries[0].Details["user_email"])
	assert.Nil(t, entries[1].Details)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogStore_ListQueryError(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t, DriverMySQL)
	mock.ExpectQuery("SELECT id, action_id").WillReturnError(errors.New("table missing"))

	_, err := NewLogStore(db).List(context.Background(), audit.Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table missing")
}
