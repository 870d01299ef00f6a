package fields

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fieldColumns = []string{"id", "role_id", "field_type", "data_key_id", "encrypted_value", "created_utc", "updated_utc"}

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
	f := &models.RoleField{ID: "f-1", RoleID: "r-1", FieldType: "nick", DataKeyID: "k-1", EncryptedValue: []byte("v"), CreatedUTC: now, UpdatedUTC: now}
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+role_fields`).
		WithArgs("f-1", "r-1", "nick", "k-1", []byte("v"), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), f))
}

func TestListByRoles(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(fieldColumns).
		AddRow("f-1", "r-1", "nick", "k-1", []byte("v1"), now, now).
		AddRow("f-2", "r-2", "email", "k-2", []byte("v2"), now, now)
	mock.ExpectQuery(`(?s)FROM\s+role_fields\s+WHERE\s+role_id\s*=\s*ANY\(\$1::uuid\[\]\)\s+ORDER\s+BY\s+created_utc,\s*id`).
		WithArgs(`{"r-1","r-2"}`).
		WillReturnRows(rows)

	got, err := repo.ListByRoles(context.Background(), []string{"r-1", "r-2"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "email", got[1].FieldType)
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+role_fields\s+WHERE\s+id\s*=\s*\$1`).WillReturnError(sql.ErrNoRows)
	_, err := repo.GetByID(context.Background(), "f-x")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdateAndDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec(`UPDATE\s+role_fields\s+SET\s+encrypted_value`).
		WithArgs("f-1", []byte("v2"), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE\s+FROM\s+role_fields\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("f-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdateValue(context.Background(), "f-1", []byte("v2"), now))
	assert.ErrorIs(t, repo.Delete(context.Background(), "f-1"), common.ErrorNotFound)
}
