package edges

import (
	"context"
	"fmt"

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

func (r *PostgresRepository) Upsert(ctx context.Context, e *models.RoleEdge) error {
	query :=
		`INSERT INTO role_edges (id, parent_role_id, child_role_id, relationship_type, encrypted_read_key, encrypted_write_key, created_utc)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (parent_role_id, child_role_id) DO UPDATE
		 SET relationship_type = EXCLUDED.relationship_type,
		     encrypted_read_key = EXCLUDED.encrypted_read_key,
		     encrypted_write_key = EXCLUDED.encrypted_write_key
		 `

	_, err := r.db.ExecContext(ctx, query, e.ID, e.ParentRoleID, e.ChildRoleID, string(e.RelationshipType),
		e.EncryptedReadKey, e.EncryptedWriteKey, e.CreatedUTC)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByParents(ctx context.Context, parentIDs []string) ([]*models.RoleEdge, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}

	query :=
		`SELECT id, parent_role_id, child_role_id, relationship_type, encrypted_read_key, encrypted_write_key, created_utc
		 FROM role_edges
		 WHERE parent_role_id = ANY($1::uuid[])
		 ORDER BY created_utc, id
		 `

	rows, err := r.db.QueryContext(ctx, query, dbx.TextArray(parentIDs))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.RoleEdge
	for rows.Next() {
		e := &models.RoleEdge{}
		var rel string
		if err := rows.Scan(&e.ID, &e.ParentRoleID, &e.ChildRoleID, &rel, &e.EncryptedReadKey, &e.EncryptedWriteKey, &e.CreatedUTC); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		e.RelationshipType = models.RelationshipType(rel)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, parentID, childID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM role_edges WHERE parent_role_id = $1 AND child_role_id = $2`, parentID, childID)
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
