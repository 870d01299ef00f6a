package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/dbx"
	"github.com/minmer/recreatio-sub002/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	query :=
		`INSERT INTO sessions (id, account_id, token_hash, secure_mode, device_info, created_utc, last_seen_utc)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 `

	_, err := r.db.ExecContext(ctx, query, s.ID, s.AccountID, s.TokenHash, s.SecureMode, s.DeviceInfo, s.CreatedUTC, s.LastSeenUTC)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash []byte) (*models.Session, error) {
	query :=
		`SELECT id, account_id, token_hash, secure_mode, device_info, created_utc, last_seen_utc, revoked_utc
		 FROM sessions
		 WHERE token_hash = $1
		 `

	s := &models.Session{}
	var revoked sql.NullTime
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(&s.ID, &s.AccountID, &s.TokenHash, &s.SecureMode,
		&s.DeviceInfo, &s.CreatedUTC, &s.LastSeenUTC, &revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if revoked.Valid {
		t := revoked.Time.UTC()
		s.RevokedUTC = &t
	}
	return s, nil
}

func (r *PostgresRepository) Touch(ctx context.Context, id string, now time.Time) error {
	return r.exec(ctx, `UPDATE sessions SET last_seen_utc = $2 WHERE id = $1`, id, now)
}

func (r *PostgresRepository) SetSecureMode(ctx context.Context, id string, secure bool) error {
	return r.exec(ctx, `UPDATE sessions SET secure_mode = $2 WHERE id = $1 AND revoked_utc IS NULL`, id, secure)
}

func (r *PostgresRepository) Revoke(ctx context.Context, id string, now time.Time) error {
	return r.exec(ctx, `UPDATE sessions SET revoked_utc = $2 WHERE id = $1 AND revoked_utc IS NULL`, id, now)
}

func (r *PostgresRepository) RevokeAllForAccount(ctx context.Context, accountID string, now time.Time) ([]string, error) {
	query :=
		`UPDATE sessions SET revoked_utc = $2
		 WHERE account_id = $1 AND revoked_utc IS NULL
		 RETURNING id
		 `

	rows, err := r.db.QueryContext(ctx, query, accountID, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
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
