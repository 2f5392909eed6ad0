// Package storage holds the Postgres adapters behind the repository and
// ledger ports. Every write is a single-row statement; reconciliation
// never needs cross-record transactions.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"reconagent/internal/domain"
	"reconagent/internal/ports"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// BatchStore persists uploaded asset batches with their record rows as
// one JSONB document, so duplicate cleanup replaces the sequence in a
// single atomic update.
type BatchStore struct {
	db *sql.DB
}

var _ ports.BatchRepository = (*BatchStore)(nil)

func NewBatchStore(db *sql.DB) *BatchStore {
	return &BatchStore{db: db}
}

func (s *BatchStore) Batch(ctx context.Context, id string) (*domain.AssetBatch, error) {
	query, args, err := psql.
		Select("records").
		From("asset_batches").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build batch query: %w", err)
	}

	var raw []byte
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("query batch %s: %w", id, err)
	}

	var records []domain.AssetRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode batch %s records: %w", id, err)
	}

	return &domain.AssetBatch{ID: id, Records: records}, nil
}

func (s *BatchStore) ReplaceRecords(ctx context.Context, id string, records []domain.AssetRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode batch %s records: %w", id, err)
	}

	query, args, err := psql.
		Update("asset_batches").
		Set("records", raw).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build batch update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("replace batch %s records: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
