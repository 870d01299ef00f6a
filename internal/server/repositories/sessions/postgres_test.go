package sessions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	s := &models.Session{ID: "s-1", AccountID: "a-1", TokenHash: []byte("h"), DeviceInfo: "cli", CreatedUTC: now, LastSeenUTC: now}

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+sessions\s*\(id,\s*account_id,\s*token_hash,\s*secure_mode,\s*device_info,\s*created_utc,\s*last_seen_utc\)`).
		WithArgs("s-1", "a-1", []byte("h"), false, "cli", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), s))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByTokenHash(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "account_id", "token_hash", "secure_mode", "device_info", "created_utc", "last_seen_utc", "revoked_utc"}).
		AddRow("s-1", "a-1", []byte("h"), true, "", now, now, now)
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+sessions\s+WHERE\s+token_hash\s*=\s*\$1\s*$`).
		WithArgs([]byte("h")).
		WillReturnRows(rows)

	got, err := repo.GetByTokenHash(context.Background(), []byte("h"))
	require.NoError(t, err)
	assert.True(t, got.SecureMode)
	assert.False(t, got.Active())
}

func TestGetByTokenHash_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+sessions`).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByTokenHash(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRevoke_AlreadyRevoked(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+sessions\s+SET\s+revoked_utc\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s+AND\s+revoked_utc\s+IS\s+NULL$`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Revoke(context.Background(), "s-1", time.Now())
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRevokeAllForAccount(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)^UPDATE\s+sessions\s+SET\s+revoked_utc\s*=\s*\$2\s+WHERE\s+account_id\s*=\s*\$1\s+AND\s+revoked_utc\s+IS\s+NULL\s+RETURNING\s+id\s*$`).
		WithArgs("a-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s-1").AddRow("s-2"))

	ids, err := repo.RevokeAllForAccount(context.Background(), "a-1", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"s-1", "s-2"}, ids)
}

func TestRevokeAllForAccount_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE\s+sessions`).WillReturnError(errors.New("boom"))

	_, err := repo.RevokeAllForAccount(context.Background(), "a-1", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
}
