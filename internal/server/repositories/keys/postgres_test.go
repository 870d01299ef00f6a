package keys

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
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
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+key_entries\s*\(id,\s*key_type,\s*owner_role_id,\s*wrapped_key,\s*created_utc\)`).
		WithArgs("k-1", "DataKey", "r-1", []byte("w"), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), &models.KeyEntry{ID: "k-1", KeyType: models.KeyTypeDataKey, OwnerRoleID: "r-1", WrappedKey: []byte("w"), CreatedUTC: now}))
}

func TestGetByIDs_SingleQuery(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)FROM\s+key_entries\s+WHERE\s+id\s*=\s*ANY\(\$1::uuid\[\]\)`).
		WithArgs(`{"k-1","k-2"}`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "key_type", "owner_role_id", "wrapped_key", "created_utc"}).
			AddRow("k-1", "DataKey", "r-1", []byte("a"), now).
			AddRow("k-2", "DataKey", "r-2", []byte("b"), now))

	got, err := repo.GetByIDs(context.Background(), []string{"k-1", "k-2"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDs_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+key_entries`).WillReturnError(errors.New("boom"))
	_, err := repo.GetByIDs(context.Background(), []string{"k-1"})
	require.Error(t, err)
}

func TestDeleteByIDs(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+key_entries`).WithArgs(`{"k-1"}`).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.DeleteByIDs(context.Background(), []string{"k-1"}))
	require.NoError(t, repo.DeleteByIDs(context.Background(), nil))
}
