package memberships

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/minmer/recreatio-sub002/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndList(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+memberships`).
		WithArgs("a-1", "r-1", "Owner", []byte(nil), []byte(nil), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`(?s)FROM\s+memberships\s+WHERE\s+account_id\s*=\s*\$1`).
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "role_id", "relationship_type", "encrypted_read_key", "encrypted_write_key", "created_utc"}).
			AddRow("a-1", "r-1", "Owner", nil, nil, now))

	require.NoError(t, repo.Create(context.Background(), &models.Membership{AccountID: "a-1", RoleID: "r-1", RelationshipType: models.RelationshipOwner, CreatedUTC: now}))

	got, err := repo.ListByAccount(context.Background(), "a-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.RelationshipOwner, got[0].RelationshipType)
}

func TestList_DBError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+memberships`).WillReturnError(errors.New("boom"))
	_, err = NewPostgresRepository(db).ListByAccount(context.Background(), "a-1")
	assert.Error(t, err)
}
