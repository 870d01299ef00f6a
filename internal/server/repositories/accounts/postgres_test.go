package accounts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var accountColumns = []string{"id", "login_id", "user_salt", "stored_verifier", "state", "failed_login_count",
	"locked_until_utc", "master_role_id", "created_utc", "updated_utc"}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := &models.Account{ID: "a-1", LoginID: "alice", UserSalt: []byte("salt"), StoredVerifier: []byte("ver"),
		State: models.AccountActive, MasterRoleID: "r-1", CreatedUTC: now, UpdatedUTC: now}

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+accounts\s*\(id,\s*login_id,.*\)\s*VALUES\s*\(\$1,.*\$9\)\s*$`).
		WithArgs("a-1", "alice", []byte("salt"), []byte("ver"), "Active", 0, "r-1", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), a))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+accounts`).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.Account{ID: "a-1"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestCreate_LoginTaken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+accounts`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_login_id_key"})

	err := repo.Create(context.Background(), &models.Account{ID: "a-2", LoginID: "alice"})
	assert.ErrorIs(t, err, common.ErrLoginIDTaken)
}

func TestGetByLoginID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	locked := now.Add(time.Minute)
	rows := sqlmock.NewRows(accountColumns).
		AddRow("a-1", "alice", []byte("salt"), []byte("ver"), "Locked", 5, locked, "r-1", now, now)
	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*login_id,.*FROM\s+accounts\s+WHERE\s+login_id\s*=\s*\$1\s*$`).
		WithArgs("alice").
		WillReturnRows(rows)

	got, err := repo.GetByLoginID(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "a-1", got.ID)
	assert.Equal(t, models.AccountLocked, got.State)
	assert.Equal(t, 5, got.FailedLoginCount)
	require.NotNil(t, got.LockedUntilUTC)
	assert.True(t, locked.Equal(*got.LockedUntilUTC))
}

func TestGetByID_NullLock(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(accountColumns).
		AddRow("a-1", "alice", []byte("salt"), []byte("ver"), "Active", 0, nil, "r-1", now, now)
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1\s*$`).
		WithArgs("a-1").
		WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Nil(t, got.LockedUntilUTC)
}

func TestGetByLoginID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+accounts`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByLoginID(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestUpdateLoginState(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	until := now.Add(15 * time.Minute)

	mock.ExpectExec(`(?s)^UPDATE\s+accounts\s+SET\s+state\s*=\s*\$2,\s*failed_login_count\s*=\s*\$3,\s*locked_until_utc\s*=\s*\$4,\s*updated_utc\s*=\s*\$5\s+WHERE\s+id\s*=\s*\$1\s*$`).
		WithArgs("a-1", "Locked", 5, sql.NullTime{Time: until, Valid: true}, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateLoginState(context.Background(), "a-1", models.AccountLocked, 5, &until, now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateVerifier_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+accounts\s+SET\s+stored_verifier`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateVerifier(context.Background(), "a-x", []byte("v"), time.Now())
	require.ErrorIs(t, err, common.ErrorNotFound)
}
