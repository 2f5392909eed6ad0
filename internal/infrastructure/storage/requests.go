package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"reconagent/internal/domain"
	"reconagent/internal/ports"
)

// RequestStore exposes beneficiary requests.
type RequestStore struct {
	db *sql.DB
}

var _ ports.RequestRepository = (*RequestStore)(nil)

func NewRequestStore(db *sql.DB) *RequestStore {
	return &RequestStore{db: db}
}

var requestColumns = []string{
	"id", "full_name", "partner_id", "status", "assigned_asset_ids",
	"assigned_status", "assigned_at", "verification", "rescheduled_from", "created_at",
}

func (s *RequestStore) Request(ctx context.Context, id string) (*domain.BeneficiaryRequest, error) {
	query, args, err := psql.
		Select(requestColumns...).
		From("beneficiary_requests").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build request query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("request %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &req, nil
}

func (s *RequestStore) ListAssignedApproved(ctx context.Context) ([]domain.BeneficiaryRequest, error) {
	query, args, err := psql.
		Select(requestColumns...).
		From("beneficiary_requests").
		Where(sq.And{
			sq.Eq{"status": domain.StatusApproved},
			sq.Eq{"assigned_status": domain.StatusAssigned},
			sq.Expr("verification IS NULL"),
		}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build requests query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var out []domain.BeneficiaryRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return out, nil
}

func (s *RequestStore) Insert(ctx context.Context, req domain.BeneficiaryRequest) error {
	var verification []byte
	if req.Verification != nil {
		raw, err := json.Marshal(req.Verification)
		if err != nil {
			return fmt.Errorf("encode verification: %w", err)
		}
		verification = raw
	}

	query, args, err := psql.
		Insert("beneficiary_requests").
		Columns(requestColumns...).
		Values(
			req.ID, req.FullName, req.PartnerID, req.Status,
			pq.StringArray(req.Assigned.AssetIDs), req.Assigned.Status,
			req.Assigned.Date, verification, req.RescheduledFrom, req.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build request insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert request %s: %w", req.ID, err)
	}
	return nil
}

func (s *RequestStore) SetVerification(ctx context.Context, id string, v domain.HandoffVerification) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode verification for %s: %w", id, err)
	}

	query, args, err := psql.
		Update("beneficiary_requests").
		Set("verification", raw).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build verification update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("persist verification for %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("request %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanRequest(row rowScanner) (domain.BeneficiaryRequest, error) {
	var (
		req          domain.BeneficiaryRequest
		assetIDs     pq.StringArray
		assignedAt   sql.NullTime
		verification []byte
	)
	err := row.Scan(
		&req.ID, &req.FullName, &req.PartnerID, &req.Status, &assetIDs,
		&req.Assigned.Status, &assignedAt, &verification,
		&req.RescheduledFrom, &req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.BeneficiaryRequest{}, sql.ErrNoRows
		}
		return domain.BeneficiaryRequest{}, fmt.Errorf("scan request: %w", err)
	}

	req.Assigned.AssetIDs = []string(assetIDs)
	if assignedAt.Valid {
		req.Assigned.Date = assignedAt.Time
	}
	if len(verification) > 0 {
		var v domain.HandoffVerification
		if err := json.Unmarshal(verification, &v); err != nil {
			return domain.BeneficiaryRequest{}, fmt.Errorf("decode verification for %s: %w", req.ID, err)
		}
		req.Verification = &v
	}
	return req, nil
}
