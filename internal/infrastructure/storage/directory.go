package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"reconagent/internal/ports"
)

// DirectoryStore resolves partner and donor display names. An absent
// row yields an empty name, never an error; callers substitute the
// role placeholder.
type DirectoryStore struct {
	db *sql.DB
}

var _ ports.DirectoryRepository = (*DirectoryStore)(nil)

func NewDirectoryStore(db *sql.DB) *DirectoryStore {
	return &DirectoryStore{db: db}
}

func (s *DirectoryStore) PartnerName(ctx context.Context, partnerID string) (string, error) {
	query, args, err := psql.
		Select("name").
		From("partners").
		Where(sq.Eq{"id": partnerID}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build partner query: %w", err)
	}

	var name string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("query partner %s: %w", partnerID, err)
	}
	return name, nil
}

func (s *DirectoryStore) DonorNameByProduct(ctx context.Context, productID string) (string, error) {
	query, args, err := psql.
		Select("d.company_name").
		From("products p").
		Join("donors d ON d.id = p.donor_id").
		Where(sq.Eq{"p.id": productID}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build donor query: %w", err)
	}

	var name string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("query donor for product %s: %w", productID, err)
	}
	return name, nil
}
