package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"

	"reconagent/internal/domain"
	"reconagent/internal/ports"
)

// LedgerStore is the durable processed-record ledger. Positive hits are
// cached in memory to spare a query per candidate per cycle; the table
// stays authoritative, so a fresh process starts correct after restart.
type LedgerStore struct {
	db *sql.DB

	mu    sync.Mutex
	known map[string]struct{}
}

var _ ports.Ledger = (*LedgerStore)(nil)

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db, known: map[string]struct{}{}}
}

func ledgerKey(recordID string, stage domain.Stage) string {
	return recordID + "/" + string(stage)
}

func (s *LedgerStore) Contains(ctx context.Context, recordID string, stage domain.Stage) (bool, error) {
	key := ledgerKey(recordID, stage)

	s.mu.Lock()
	_, cached := s.known[key]
	s.mu.Unlock()
	if cached {
		return true, nil
	}

	query, args, err := psql.
		Select("1").
		From("processed_records").
		Where(sq.Eq{"record_id": recordID, "stage": string(stage)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build ledger query: %w", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("query ledger for %s/%s: %w", recordID, stage, err)
	}

	s.remember(key)
	return true, nil
}

// Mark durably records completion. Only call after the record's outcome
// is persisted and its messages dispatched.
func (s *LedgerStore) Mark(ctx context.Context, recordID string, stage domain.Stage) error {
	query, args, err := psql.
		Insert("processed_records").
		Columns("record_id", "stage").
		Values(recordID, string(stage)).
		Suffix("ON CONFLICT (record_id, stage) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build ledger insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark %s/%s: %w", recordID, stage, err)
	}

	s.remember(ledgerKey(recordID, stage))
	return nil
}

func (s *LedgerStore) remember(key string) {
	s.mu.Lock()
	s.known[key] = struct{}{}
	s.mu.Unlock()
}
