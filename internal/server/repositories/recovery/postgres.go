package recovery

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

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

const selectPlan = `SELECT id, target_role_id, created_by_role_id, encrypted_role_keys, created_utc, activated_utc
		 FROM role_recovery_plans
		 `

func scanPlan(s scanner) (*models.RoleRecoveryPlan, error) {
	p := &models.RoleRecoveryPlan{}
	var activated sql.NullTime
	if err := s.Scan(&p.ID, &p.TargetRoleID, &p.CreatedByRoleID, &p.EncryptedRoleKeys, &p.CreatedUTC, &activated); err != nil {
		return nil, err
	}
	p.ActivatedUTC = nullTimePtr(activated)
	return p, nil
}

func (r *PostgresRepository) CreatePlan(ctx context.Context, p *models.RoleRecoveryPlan) error {
	query :=
		`INSERT INTO role_recovery_plans (id, target_role_id, created_by_role_id, encrypted_role_keys, created_utc)
		 VALUES ($1, $2, $3, $4, $5)
		 `
	if _, err := r.db.ExecContext(ctx, query, p.ID, p.TargetRoleID, p.CreatedByRoleID, p.EncryptedRoleKeys, p.CreatedUTC); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetPlan(ctx context.Context, id string) (*models.RoleRecoveryPlan, error) {
	p, err := scanPlan(r.db.QueryRowContext(ctx, selectPlan+`WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) ListPlansByTargets(ctx context.Context, targetRoleIDs []string) ([]*models.RoleRecoveryPlan, error) {
	if len(targetRoleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, selectPlan+`WHERE target_role_id = ANY($1::uuid[]) ORDER BY created_utc, id`, dbx.TextArray(targetRoleIDs))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.RoleRecoveryPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) MarkPlanActivated(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE role_recovery_plans SET activated_utc = $2 WHERE id = $1 AND activated_utc IS NULL`, id, now)
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

func (r *PostgresRepository) AddPlanShare(ctx context.Context, s *models.RoleRecoveryPlanShare) error {
	query :=
		`INSERT INTO role_recovery_plan_shares (id, plan_id, shared_with_role_id, encrypted_share, created_utc)
		 VALUES ($1, $2, $3, $4, $5)
		 `
	if _, err := r.db.ExecContext(ctx, query, s.ID, s.PlanID, s.SharedWithRoleID, s.EncryptedShare, s.CreatedUTC); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListPlanShares(ctx context.Context, planIDs []string) ([]*models.RoleRecoveryPlanShare, error) {
	if len(planIDs) == 0 {
		return nil, nil
	}

	query :=
		`SELECT id, plan_id, shared_with_role_id, encrypted_share, created_utc
		 FROM role_recovery_plan_shares
		 WHERE plan_id = ANY($1::uuid[])
		 ORDER BY created_utc, id
		 `

	rows, err := r.db.QueryContext(ctx, query, dbx.TextArray(planIDs))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.RoleRecoveryPlanShare
	for rows.Next() {
		s := &models.RoleRecoveryPlanShare{}
		if err := rows.Scan(&s.ID, &s.PlanID, &s.SharedWithRoleID, &s.EncryptedShare, &s.CreatedUTC); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) CreateShare(ctx context.Context, s *models.RoleRecoveryShare) error {
	query :=
		`INSERT INTO role_recovery_shares (id, plan_id, target_role_id, shared_with_role_id, encrypted_share, created_utc)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 `
	if _, err := r.db.ExecContext(ctx, query, s.ID, s.PlanID, s.TargetRoleID, s.SharedWithRoleID, s.EncryptedShare, s.CreatedUTC); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListActiveShares(ctx context.Context, targetRoleIDs []string) ([]*models.RoleRecoveryShare, error) {
	if len(targetRoleIDs) == 0 {
		return nil, nil
	}

	query :=
		`SELECT id, plan_id, target_role_id, shared_with_role_id, encrypted_share, created_utc, revoked_utc
		 FROM role_recovery_shares
		 WHERE target_role_id = ANY($1::uuid[]) AND revoked_utc IS NULL
		 ORDER BY created_utc, id
		 `

	rows, err := r.db.QueryContext(ctx, query, dbx.TextArray(targetRoleIDs))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.RoleRecoveryShare
	for rows.Next() {
		s := &models.RoleRecoveryShare{}
		var revoked sql.NullTime
		if err := rows.Scan(&s.ID, &s.PlanID, &s.TargetRoleID, &s.SharedWithRoleID, &s.EncryptedShare, &s.CreatedUTC, &revoked); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		s.RevokedUTC = nullTimePtr(revoked)
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) RevokeActiveShares(ctx context.Context, targetRoleID string, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE role_recovery_shares SET revoked_utc = $2 WHERE target_role_id = $1 AND revoked_utc IS NULL`, targetRoleID, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
