package fields

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

func (r *PostgresRepository) Create(ctx context.Context, f *models.RoleField) error {
	query :=
		`INSERT INTO role_fields (id, role_id, field_type, data_key_id, encrypted_value, created_utc, updated_utc)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 `

	_, err := r.db.ExecContext(ctx, query, f.ID, f.RoleID, f.FieldType, f.DataKeyID, f.EncryptedValue, f.CreatedUTC, f.UpdatedUTC)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectField = `SELECT id, role_id, field_type, data_key_id, encrypted_value, created_utc, updated_utc
		 FROM role_fields
		 `

type scanner interface {
	Scan(dest ...any) error
}

func scanField(s scanner) (*models.RoleField, error) {
	f := &models.RoleField{}
	err := s.Scan(&f.ID, &f.RoleID, &f.FieldType, &f.DataKeyID, &f.EncryptedValue, &f.CreatedUTC, &f.UpdatedUTC)
	return f, err
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.RoleField, error) {
	f, err := scanField(r.db.QueryRowContext(ctx, selectField+`WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.RoleField, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, selectField+`WHERE id = ANY($1::uuid[]) ORDER BY created_utc, id`, dbx.TextArray(ids))
}

func (r *PostgresRepository) ListByRoles(ctx context.Context, roleIDs []string) ([]*models.RoleField, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	return r.list(ctx, selectField+`WHERE role_id = ANY($1::uuid[]) ORDER BY created_utc, id`, dbx.TextArray(roleIDs))
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.RoleField, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.RoleField
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) UpdateValue(ctx context.Context, id string, encryptedValue []byte, now time.Time) error {
	return r.exec(ctx, `UPDATE role_fields SET encrypted_value = $2, updated_utc = $3 WHERE id = $1`, id, encryptedValue, now)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM role_fields WHERE id = $1`, id)
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
