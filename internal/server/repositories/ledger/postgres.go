package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/dbx"
	"github.com/minmer/recreatio-sub002/internal/server/models"
)

var errUnknownChain = errors.New("unknown ledger chain")

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func table(chain models.LedgerChain) (string, error) {
	switch chain {
	case models.ChainAuth:
		return "auth_ledger", nil
	case models.ChainKey:
		return "key_ledger", nil
	case models.ChainBusiness:
		return "business_ledger", nil
	}
	return "", errUnknownChain
}

func (r *PostgresRepository) Lock(ctx context.Context, chain models.LedgerChain) error {
	name, err := table(chain)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, name); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

const entryColumns = `id, seq, timestamp_utc, event_type, actor, payload_json, previous_hash, hash, COALESCE(signer_role_id::text, ''), signature, COALESCE(signature_alg, '')`

func scanEntry(s scanner, chain models.LedgerChain) (*models.LedgerEntry, error) {
	e := &models.LedgerEntry{Chain: chain}
	if err := s.Scan(&e.ID, &e.Sequence, &e.TimestampUTC, &e.EventType, &e.Actor, &e.PayloadJSON, &e.PreviousHash,
		&e.Hash, &e.SignerRoleID, &e.Signature, &e.SignatureAlg); err != nil {
		return nil, err
	}
	e.TimestampUTC = e.TimestampUTC.UTC()
	return e, nil
}

func (r *PostgresRepository) Last(ctx context.Context, chain models.LedgerChain) (*models.LedgerEntry, error) {
	name, err := table(chain)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + entryColumns + ` FROM ` + name + ` ORDER BY timestamp_utc DESC, seq DESC LIMIT 1`

	e, err := scanEntry(r.db.QueryRowContext(ctx, query), chain)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, e *models.LedgerEntry) error {
	name, err := table(e.Chain)
	if err != nil {
		return err
	}

	query := `INSERT INTO ` + name + ` (id, timestamp_utc, event_type, actor, payload_json, previous_hash, hash, signer_role_id, signature, signature_alg)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING seq`

	signer := sql.NullString{String: e.SignerRoleID, Valid: e.SignerRoleID != ""}
	alg := sql.NullString{String: e.SignatureAlg, Valid: e.SignatureAlg != ""}
	// previous_hash is NOT NULL; the first entry of a chain stores an empty value.
	prev := e.PreviousHash
	if prev == nil {
		prev = []byte{}
	}

	err = r.db.QueryRowContext(ctx, query, e.ID, e.TimestampUTC, e.EventType, e.Actor, e.PayloadJSON,
		prev, e.Hash, signer, e.Signature, alg).Scan(&e.Sequence)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, chain models.LedgerChain) ([]*models.LedgerEntry, error) {
	name, err := table(chain)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM `+name+` ORDER BY timestamp_utc, seq`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows, chain)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
