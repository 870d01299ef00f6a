package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/dbx"
	"github.com/minmer/recreatio-sub002/internal/server/models"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) error {
	query :=
		`INSERT INTO accounts (id, login_id, user_salt, stored_verifier, state, failed_login_count, master_role_id, created_utc, updated_utc)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 `

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.LoginID, a.UserSalt, a.StoredVerifier, string(a.State), a.FailedLoginCount, a.MasterRoleID, a.CreatedUTC, a.UpdatedUTC)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return common.ErrLoginIDTaken
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectAccount = `SELECT id, login_id, user_salt, stored_verifier, state, failed_login_count, locked_until_utc, master_role_id, created_utc, updated_utc
		 FROM accounts
		 `

func (r *PostgresRepository) GetByLoginID(ctx context.Context, loginID string) (*models.Account, error) {
	return r.getOne(ctx, selectAccount+`WHERE login_id = $1`, loginID)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.getOne(ctx, selectAccount+`WHERE id = $1`, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*models.Account, error) {
	a := &models.Account{}
	var state string
	var lockedUntil sql.NullTime

	err := r.db.QueryRowContext(ctx, query, arg).Scan(&a.ID, &a.LoginID, &a.UserSalt, &a.StoredVerifier, &state,
		&a.FailedLoginCount, &lockedUntil, &a.MasterRoleID, &a.CreatedUTC, &a.UpdatedUTC)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	a.State = models.AccountState(state)
	if lockedUntil.Valid {
		t := lockedUntil.Time.UTC()
		a.LockedUntilUTC = &t
	}
	return a, nil
}

func (r *PostgresRepository) UpdateLoginState(ctx context.Context, id string, state models.AccountState, failedCount int, lockedUntil *time.Time, now time.Time) error {
	query :=
		`UPDATE accounts SET state = $2, failed_login_count = $3, locked_until_utc = $4, updated_utc = $5
		 WHERE id = $1
		 `

	var until sql.NullTime
	if lockedUntil != nil {
		until = sql.NullTime{Time: *lockedUntil, Valid: true}
	}
	return r.exec(ctx, query, id, string(state), failedCount, until, now)
}

func (r *PostgresRepository) UpdateVerifier(ctx context.Context, id string, verifier []byte, now time.Time) error {
	query :=
		`UPDATE accounts SET stored_verifier = $2, updated_utc = $3
		 WHERE id = $1
		 `
	return r.exec(ctx, query, id, verifier, now)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
