package roles

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

func (r *PostgresRepository) Create(ctx context.Context, role *models.Role) error {
	query :=
		`INSERT INTO roles (id, role_type, encrypted_blob, public_signing_key, public_signing_key_alg, public_encryption_key, created_utc, updated_utc)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 `

	_, err := r.db.ExecContext(ctx, query, role.ID, role.RoleType, role.EncryptedBlob, role.PublicSigningKey,
		role.PublicSigningKeyAlg, role.PublicEncryptionKey, role.CreatedUTC, role.UpdatedUTC)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectRole = `SELECT id, role_type, encrypted_blob, public_signing_key, COALESCE(public_signing_key_alg, ''), public_encryption_key, created_utc, updated_utc
		 FROM roles
		 `

type scanner interface {
	Scan(dest ...any) error
}

func scanRole(s scanner) (*models.Role, error) {
	role := &models.Role{}
	err := s.Scan(&role.ID, &role.RoleType, &role.EncryptedBlob, &role.PublicSigningKey, &role.PublicSigningKeyAlg,
		&role.PublicEncryptionKey, &role.CreatedUTC, &role.UpdatedUTC)
	return role, err
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Role, error) {
	role, err := scanRole(r.db.QueryRowContext(ctx, selectRole+`WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return role, nil
}

func (r *PostgresRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, selectRole+`WHERE id = ANY($1::uuid[])`, dbx.TextArray(ids))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) UpdateBlob(ctx context.Context, id string, blob []byte, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE roles SET encrypted_blob = $2, updated_utc = $3 WHERE id = $1`, id, blob, now)
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
