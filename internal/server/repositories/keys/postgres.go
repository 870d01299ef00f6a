package keys

import (
	"context"
	"fmt"

	"github.com/minmer/recreatio-sub002/internal/dbx"
	"github.com/minmer/recreatio-sub002/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, e *models.KeyEntry) error {
	query :=
		`INSERT INTO key_entries (id, key_type, owner_role_id, wrapped_key, created_utc)
		 VALUES ($1, $2, $3, $4, $5)
		 `

	_, err := r.db.ExecContext(ctx, query, e.ID, e.KeyType, e.OwnerRoleID, e.WrappedKey, e.CreatedUTC)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.KeyEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query :=
		`SELECT id, key_type, owner_role_id, wrapped_key, created_utc
		 FROM key_entries
		 WHERE id = ANY($1::uuid[])
		 `

	rows, err := r.db.QueryContext(ctx, query, dbx.TextArray(ids))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.KeyEntry
	for rows.Next() {
		e := &models.KeyEntry{}
		if err := rows.Scan(&e.ID, &e.KeyType, &e.OwnerRoleID, &e.WrappedKey, &e.CreatedUTC); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM key_entries WHERE id = ANY($1::uuid[])`, dbx.TextArray(ids)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
