package watch

import (
	"context"
	"fmt"

	"reconagent/internal/domain"
	"reconagent/internal/ports"
)

// DonorToPartnerStage selects delivered donor shipments awaiting partner
// confirmation.
type DonorToPartnerStage struct {
	deliveries ports.DeliveryRepository
	directory  ports.DirectoryRepository
}

var _ StageAdapter = (*DonorToPartnerStage)(nil)

func NewDonorToPartnerStage(deliveries ports.DeliveryRepository, directory ports.DirectoryRepository) *DonorToPartnerStage {
	return &DonorToPartnerStage{deliveries: deliveries, directory: directory}
}

func (s *DonorToPartnerStage) Stage() domain.Stage {
	return domain.StageDonorToPartner
}

func (s *DonorToPartnerStage) Candidates(ctx context.Context) ([]Candidate, error) {
	deliveries, err := s.deliveries.ListUnverifiedDelivered(ctx)
	if err != nil {
		return nil, fmt.Errorf("list delivered: %w", err)
	}

	candidates := make([]Candidate, 0, len(deliveries))
	for _, d := range deliveries {
		partner := s.partnerName(ctx, d.PartnerID)
		donor := s.donorName(ctx, d)
		tracking := d.TrackingID()
		committed := len(d.AssetIDs)

		candidates = append(candidates, Candidate{
			ID:         d.ID,
			TrackingID: tracking,
			Committed:  committed,
			Receiver:   partner,
			Sender:     donor,
			Prompt: fmt.Sprintf(
				"Hello %s, your delivery from %s with tracking ID %s has been marked as Delivered.\nHow many units did you actually receive? (Committed: %d)",
				partner, donor, tracking, committed,
			),
		})
	}
	return candidates, nil
}

func (s *DonorToPartnerStage) SaveOutcome(ctx context.Context, id string, v domain.HandoffVerification) error {
	return s.deliveries.SetVerification(ctx, id, v)
}

// Name lookups never fail a candidate; an absent or erroring directory
// entry resolves to the role placeholder.
func (s *DonorToPartnerStage) partnerName(ctx context.Context, partnerID string) string {
	name, err := s.directory.PartnerName(ctx, partnerID)
	if err != nil || name == "" {
		return domain.PlaceholderPartner
	}
	return name
}

// donorName walks the first assigned product to its donor; all assets in
// one delivery come from the same upload.
func (s *DonorToPartnerStage) donorName(ctx context.Context, d domain.Delivery) string {
	if len(d.AssetIDs) == 0 {
		return domain.PlaceholderDonor
	}
	name, err := s.directory.DonorNameByProduct(ctx, d.AssetIDs[0])
	if err != nil || name == "" {
		return domain.PlaceholderDonor
	}
	return name
}

// PartnerToBeneficiaryStage selects assigned beneficiary requests
// awaiting the beneficiary's confirmation.
type PartnerToBeneficiaryStage struct {
	requests  ports.RequestRepository
	directory ports.DirectoryRepository
}

var _ StageAdapter = (*PartnerToBeneficiaryStage)(nil)

func NewPartnerToBeneficiaryStage(requests ports.RequestRepository, directory ports.DirectoryRepository) *PartnerToBeneficiaryStage {
	return &PartnerToBeneficiaryStage{requests: requests, directory: directory}
}

func (s *PartnerToBeneficiaryStage) Stage() domain.Stage {
	return domain.StagePartnerToBeneficiary
}

func (s *PartnerToBeneficiaryStage) Candidates(ctx context.Context) ([]Candidate, error) {
	requests, err := s.requests.ListAssignedApproved(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assigned requests: %w", err)
	}

	candidates := make([]Candidate, 0, len(requests))
	for _, r := range requests {
		beneficiary := r.FullName
		if beneficiary == "" {
			beneficiary = domain.PlaceholderBeneficiary
		}
		partner := s.partnerName(ctx, r.PartnerID)
		committed := len(r.Assigned.AssetIDs)

		candidates = append(candidates, Candidate{
			ID:         r.ID,
			TrackingID: r.ID,
			Committed:  committed,
			Receiver:   beneficiary,
			Sender:     partner,
			Prompt: fmt.Sprintf(
				"Hi %s! We've marked your request %s as assigned.\nHow many assets did you actually receive? (We expected to deliver %d.)",
				beneficiary, r.ID, committed,
			),
		})
	}
	return candidates, nil
}

func (s *PartnerToBeneficiaryStage) SaveOutcome(ctx context.Context, id string, v domain.HandoffVerification) error {
	return s.requests.SetVerification(ctx, id, v)
}

func (s *PartnerToBeneficiaryStage) partnerName(ctx context.Context, partnerID string) string {
	name, err := s.directory.PartnerName(ctx, partnerID)
	if err != nil || name == "" {
		return domain.PlaceholderPartner
	}
	return name
}
