package memberships

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

func (r *PostgresRepository) Create(ctx context.Context, m *models.Membership) error {
	query :=
		`INSERT INTO memberships (account_id, role_id, relationship_type, encrypted_read_key, encrypted_write_key, created_utc)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 `

	_, err := r.db.ExecContext(ctx, query, m.AccountID, m.RoleID, string(m.RelationshipType), m.EncryptedReadKey, m.EncryptedWriteKey, m.CreatedUTC)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Membership, error) {
	query :=
		`SELECT account_id, role_id, relationship_type, encrypted_read_key, encrypted_write_key, created_utc
		 FROM memberships
		 WHERE account_id = $1
		 ORDER BY created_utc, role_id
		 `

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Membership
	for rows.Next() {
		m := &models.Membership{}
		var rel string
		if err := rows.Scan(&m.AccountID, &m.RoleID, &rel, &m.EncryptedReadKey, &m.EncryptedWriteKey, &m.CreatedUTC); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		m.RelationshipType = models.RelationshipType(rel)
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
