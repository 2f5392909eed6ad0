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

// DeliveryStore exposes donor-to-partner deliveries.
type DeliveryStore struct {
	db *sql.DB
}

var _ ports.DeliveryRepository = (*DeliveryStore)(nil)

func NewDeliveryStore(db *sql.DB) *DeliveryStore {
	return &DeliveryStore{db: db}
}

var deliveryColumns = []string{
	"id", "partner_id", "beneficiary_request_id", "asset_ids",
	"status", "order_id", "shipment_id", "shipping_status", "verification",
}

func (s *DeliveryStore) ListUnverifiedDelivered(ctx context.Context) ([]domain.Delivery, error) {
	return s.list(ctx, sq.And{
		sq.Eq{"status": domain.StatusDelivered},
		sq.Expr("verification IS NULL"),
	})
}

func (s *DeliveryStore) ListInProgress(ctx context.Context) ([]domain.Delivery, error) {
	return s.list(ctx, sq.Eq{"shipping_status": domain.StatusInProgress})
}

func (s *DeliveryStore) list(ctx context.Context, pred any) ([]domain.Delivery, error) {
	query, args, err := psql.
		Select(deliveryColumns...).
		From("deliveries").
		Where(pred).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build deliveries query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var out []domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return out, nil
}

func (s *DeliveryStore) FindByRequest(ctx context.Context, requestID string) (*domain.Delivery, error) {
	query, args, err := psql.
		Select(deliveryColumns...).
		From("deliveries").
		Where(sq.Eq{"beneficiary_request_id": requestID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build delivery query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("delivery for request %s: %w", requestID, domain.ErrNotFound)
		}
		return nil, err
	}
	return &d, nil
}

func (s *DeliveryStore) SetVerification(ctx context.Context, id string, v domain.HandoffVerification) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode verification for %s: %w", id, err)
	}

	query, args, err := psql.
		Update("deliveries").
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
		return fmt.Errorf("delivery %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (domain.Delivery, error) {
	var (
		d            domain.Delivery
		assetIDs     pq.StringArray
		verification []byte
	)
	err := row.Scan(
		&d.ID, &d.PartnerID, &d.BeneficiaryRequestID, &assetIDs,
		&d.Status, &d.Shipping.OrderID, &d.Shipping.ShipmentID,
		&d.Shipping.Status, &verification,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Delivery{}, sql.ErrNoRows
		}
		return domain.Delivery{}, fmt.Errorf("scan delivery: %w", err)
	}

	d.AssetIDs = []string(assetIDs)
	if len(verification) > 0 {
		var v domain.HandoffVerification
		if err := json.Unmarshal(verification, &v); err != nil {
			return domain.Delivery{}, fmt.Errorf("decode verification for %s: %w", d.ID, err)
		}
		d.Verification = &v
	}
	return d, nil
}
