package ports

import (
	"context"

	"reconagent/internal/domain"
)

// BatchRepository persists uploaded asset batches.
type BatchRepository interface {
	Batch(ctx context.Context, id string) (*domain.AssetBatch, error)
	ReplaceRecords(ctx context.Context, id string, records []domain.AssetRecord) error
}

// DeliveryRepository exposes donor-to-partner deliveries.
type DeliveryRepository interface {
	// ListUnverifiedDelivered returns deliveries marked Delivered that
	// carry no verification outcome yet.
	ListUnverifiedDelivered(ctx context.Context) ([]domain.Delivery, error)
	// ListInProgress returns deliveries still in transit, for the
	// failed-shipment sweep.
	ListInProgress(ctx context.Context) ([]domain.Delivery, error)
	FindByRequest(ctx context.Context, requestID string) (*domain.Delivery, error)
	SetVerification(ctx context.Context, id string, v domain.HandoffVerification) error
}

// RequestRepository exposes beneficiary requests.
type RequestRepository interface {
	Request(ctx context.Context, id string) (*domain.BeneficiaryRequest, error)
	// ListAssignedApproved returns approved requests whose assignment is
	// marked Assigned and that carry no verification outcome yet.
	ListAssignedApproved(ctx context.Context) ([]domain.BeneficiaryRequest, error)
	Insert(ctx context.Context, req domain.BeneficiaryRequest) error
	SetVerification(ctx context.Context, id string, v domain.HandoffVerification) error
}

// DirectoryRepository resolves display names for prompts and alerts.
// A lookup that finds nothing returns an empty name and a nil error;
// callers substitute a role placeholder.
type DirectoryRepository interface {
	PartnerName(ctx context.Context, partnerID string) (string, error)
	// DonorNameByProduct walks product -> donor to find the company name
	// behind an assigned asset.
	DonorNameByProduct(ctx context.Context, productID string) (string, error)
}

// Ledger is the durable set of (record, stage) pairs whose verification
// side effects have fully completed. It is what makes polling idempotent
// across restarts: a crash before Mark causes a safe re-verification,
// never silent loss.
type Ledger interface {
	Contains(ctx context.Context, recordID string, stage domain.Stage) (bool, error)
	Mark(ctx context.Context, recordID string, stage domain.Stage) error
}

// Channel is the two-way conversational transport to the humans being
// asked for received quantities.
type Channel interface {
	Send(ctx context.Context, text string, system bool) error
	// AwaitReply blocks until the next inbound message or the configured
	// reply timeout.
	AwaitReply(ctx context.Context) (string, error)
}

// ShipmentTracker looks up courier-side shipment state.
type ShipmentTracker interface {
	Authenticate(ctx context.Context) (string, error)
	Status(ctx context.Context, shipmentID, token string) (domain.ShipmentStatus, error)
}

// Assistant generates helper text for operator-facing messages. Never a
// dependency of a reconciliation invariant.
type Assistant interface {
	Ask(ctx context.Context, prompt, extra string) (string, error)
}
