package ledger

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ledgerColumns = []string{"id", "seq", "timestamp_utc", "event_type", "actor", "payload_json", "previous_hash", "hash", "signer_role_id", "signature", "signature_alg"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

func TestLock_PerChainTable(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`SELECT\s+pg_advisory_xact_lock\(hashtext\(\$1\)\)`).WithArgs("key_ledger").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.Lock(context.Background(), models.ChainKey))

	assert.Error(t, repo.Lock(context.Background(), models.LedgerChain("nope")))
}

func TestLast_EmptyChain(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+auth_ledger\s+ORDER\s+BY\s+timestamp_utc\s+DESC,\s*seq\s+DESC\s+LIMIT\s+1`).WillReturnError(sql.ErrNoRows)

	_, err := repo.Last(context.Background(), models.ChainAuth)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestInsert_AssignsSequence(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ts := time.Now().UTC()
	e := &models.LedgerEntry{ID: "l-1", Chain: models.ChainBusiness, TimestampUTC: ts, EventType: "DataItemCreated", Actor: "a-1",
		PayloadJSON: `{}`, PreviousHash: []byte{}, Hash: []byte("h")}

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+business_ledger.*RETURNING\s+seq$`).
		WithArgs("l-1", ts, "DataItemCreated", "a-1", `{}`, []byte{}, []byte("h"), sql.NullString{}, []byte(nil), sql.NullString{}).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(12)))

	require.NoError(t, repo.Insert(context.Background(), e))
	assert.Equal(t, int64(12), e.Sequence)
}

func TestInsert_FirstEntryStoresEmptyPreviousHash(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ts := time.Now().UTC()
	e := &models.LedgerEntry{ID: "l-0", Chain: models.ChainAuth, TimestampUTC: ts, EventType: "RegistrationCreated", Actor: "a-1",
		PayloadJSON: `{}`, Hash: []byte("h")}

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+auth_ledger.*RETURNING\s+seq$`).
		WithArgs("l-0", ts, "RegistrationCreated", "a-1", `{}`, nonNilEmptyBytes{}, []byte("h"), sql.NullString{}, []byte(nil), sql.NullString{}).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(1)))

	require.NoError(t, repo.Insert(context.Background(), e))
	require.NoError(t, mock.ExpectationsWereMet())
}

// nonNilEmptyBytes matches a zero-length []byte that is not nil, which the
// driver sends as an empty bytea instead of NULL.
type nonNilEmptyBytes struct{}

func (nonNilEmptyBytes) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	return ok && b != nil && len(b) == 0
}

func TestList_Ordered(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ts := time.Now().UTC()
	mock.ExpectQuery(`(?s)FROM\s+key_ledger\s+ORDER\s+BY\s+timestamp_utc,\s*seq$`).
		WillReturnRows(sqlmock.NewRows(ledgerColumns).
			AddRow("l-1", int64(1), ts, "MasterRoleCreated", "a-1", `{}`, []byte{}, []byte("h1"), "r-1", []byte("sig"), "Ed25519").
			AddRow("l-2", int64(2), ts, "RoleCreated", "a-1", `{}`, []byte("h1"), []byte("h2"), "", nil, ""))

	got, err := repo.List(context.Background(), models.ChainKey)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.ChainKey, got[0].Chain)
	assert.Equal(t, "r-1", got[0].SignerRoleID)
	assert.Empty(t, got[1].SignerRoleID)
}
