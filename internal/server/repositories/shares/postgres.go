package shares

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

type scanner interface {
	Scan(dest ...any) error
}

func wrapRowErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	return fmt.Errorf("db error: %w", err)
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// markAccepted flips accepted_utc once; a second attempt is not pending anymore.
func (r *PostgresRepository) markAccepted(ctx context.Context, table, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE `+table+` SET accepted_utc = $2 WHERE id = $1 AND accepted_utc IS NULL`, id, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrShareNotPending
	}
	return nil
}

// --- role shares ---

const selectRoleShare = `SELECT id, source_role_id, target_role_id, relationship_type, sealed_read_key, sealed_write_key, created_utc, accepted_utc
		 FROM pending_role_shares
		 `

func scanRoleShare(s scanner) (*models.PendingRoleShare, error) {
	sh := &models.PendingRoleShare{}
	var rel string
	var accepted sql.NullTime
	if err := s.Scan(&sh.ID, &sh.SourceRoleID, &sh.TargetRoleID, &rel, &sh.SealedReadKey, &sh.SealedWriteKey, &sh.CreatedUTC, &accepted); err != nil {
		return nil, err
	}
	sh.RelationshipType = models.RelationshipType(rel)
	sh.AcceptedUTC = nullTimePtr(accepted)
	return sh, nil
}

func (r *PostgresRepository) CreateRoleShare(ctx context.Context, s *models.PendingRoleShare) error {
	query :=
		`INSERT INTO pending_role_shares (id, source_role_id, target_role_id, relationship_type, sealed_read_key, sealed_write_key, created_utc)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 `
	if _, err := r.db.ExecContext(ctx, query, s.ID, s.SourceRoleID, s.TargetRoleID, string(s.RelationshipType),
		s.SealedReadKey, s.SealedWriteKey, s.CreatedUTC); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetRoleShare(ctx context.Context, id string) (*models.PendingRoleShare, error) {
	sh, err := scanRoleShare(r.db.QueryRowContext(ctx, selectRoleShare+`WHERE id = $1`, id))
	if err != nil {
		return nil, wrapRowErr(err)
	}
	return sh, nil
}

func (r *PostgresRepository) ListPendingRoleShares(ctx context.Context, targetRoleIDs []string) ([]*models.PendingRoleShare, error) {
	if len(targetRoleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, selectRoleShare+`WHERE target_role_id = ANY($1::uuid[]) AND accepted_utc IS NULL ORDER BY created_utc, id`,
		dbx.TextArray(targetRoleIDs))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.PendingRoleShare
	for rows.Next() {
		sh, err := scanRoleShare(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) MarkRoleShareAccepted(ctx context.Context, id string, now time.Time) error {
	return r.markAccepted(ctx, "pending_role_shares", id, now)
}

// --- data shares ---

const selectDataShare = `SELECT id, field_id, target_role_id, permission_type, sealed_data_key, created_utc, accepted_utc
		 FROM pending_data_shares
		 `

func scanDataShare(s scanner) (*models.PendingDataShare, error) {
	sh := &models.PendingDataShare{}
	var perm string
	var accepted sql.NullTime
	if err := s.Scan(&sh.ID, &sh.FieldID, &sh.TargetRoleID, &perm, &sh.SealedDataKey, &sh.CreatedUTC, &accepted); err != nil {
		return nil, err
	}
	sh.PermissionType = models.PermissionType(perm)
	sh.AcceptedUTC = nullTimePtr(accepted)
	return sh, nil
}

func (r *PostgresRepository) CreateDataShare(ctx context.Context, s *models.PendingDataShare) error {
	query :=
		`INSERT INTO pending_data_shares (id, field_id, target_role_id, permission_type, sealed_data_key, created_utc)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 `
	if _, err := r.db.ExecContext(ctx, query, s.ID, s.FieldID, s.TargetRoleID, string(s.PermissionType), s.SealedDataKey, s.CreatedUTC); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetDataShare(ctx context.Context, id string) (*models.PendingDataShare, error) {
	sh, err := scanDataShare(r.db.QueryRowContext(ctx, selectDataShare+`WHERE id = $1`, id))
	if err != nil {
		return nil, wrapRowErr(err)
	}
	return sh, nil
}

func (r *PostgresRepository) ListPendingDataShares(ctx context.Context, targetRoleIDs []string) ([]*models.PendingDataShare, error) {
	if len(targetRoleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, selectDataShare+`WHERE target_role_id = ANY($1::uuid[]) AND accepted_utc IS NULL ORDER BY created_utc, id`,
		dbx.TextArray(targetRoleIDs))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.PendingDataShare
	for rows.Next() {
		sh, err := scanDataShare(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) MarkDataShareAccepted(ctx context.Context, id string, now time.Time) error {
	return r.markAccepted(ctx, "pending_data_shares", id, now)
}

// --- grants ---

func (r *PostgresRepository) CreateGrant(ctx context.Context, g *models.DataKeyGrant) error {
	query :=
		`INSERT INTO data_key_grants (id, field_id, role_id, key_entry_id, permission_type, created_utc)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 `
	if _, err := r.db.ExecContext(ctx, query, g.ID, g.FieldID, g.RoleID, g.KeyEntryID, string(g.PermissionType), g.CreatedUTC); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListGrantsByRoles(ctx context.Context, roleIDs []string) ([]*models.DataKeyGrant, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	query :=
		`SELECT id, field_id, role_id, key_entry_id, permission_type, created_utc
		 FROM data_key_grants
		 WHERE role_id = ANY($1::uuid[])
		 ORDER BY created_utc, id
		 `

	rows, err := r.db.QueryContext(ctx, query, dbx.TextArray(roleIDs))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.DataKeyGrant
	for rows.Next() {
		g := &models.DataKeyGrant{}
		var perm string
		if err := rows.Scan(&g.ID, &g.FieldID, &g.RoleID, &g.KeyEntryID, &perm, &g.CreatedUTC); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		g.PermissionType = models.PermissionType(perm)
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) DeleteByField(ctx context.Context, fieldID string) ([]string, error) {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_data_shares WHERE field_id = $1`, fieldID); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `DELETE FROM data_key_grants WHERE field_id = $1 RETURNING key_entry_id`, fieldID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var keyIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		keyIDs = append(keyIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return keyIDs, nil
}
