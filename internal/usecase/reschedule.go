// Package usecase hosts the operations that sit above single records:
// rescheduling failed beneficiary deliveries and sweeping courier state.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reconagent/internal/domain"
	"reconagent/internal/ports"
)

// RescheduleCoordinator clones a beneficiary request whose delivery the
// courier reports as failed, decoupling the retry from the failed
// fulfillment. The original record is never mutated.
type RescheduleCoordinator struct {
	requests   ports.RequestRepository
	deliveries ports.DeliveryRepository
	tracker    ports.ShipmentTracker
	ledger     ports.Ledger
	channel    ports.Channel
	logger     *slog.Logger
}

func NewRescheduleCoordinator(
	requests ports.RequestRepository,
	deliveries ports.DeliveryRepository,
	tracker ports.ShipmentTracker,
	ledger ports.Ledger,
	channel ports.Channel,
	logger *slog.Logger,
) *RescheduleCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RescheduleCoordinator{
		requests:   requests,
		deliveries: deliveries,
		tracker:    tracker,
		ledger:     ledger,
		channel:    channel,
		logger:     logger,
	}
}

// Reschedule verifies the courier reports the request's delivery as
// failed, then inserts a fresh Pending copy of the request. Returns the
// new request id. Fails with domain.ErrNotFound for a missing request,
// domain.ErrAlreadyRescheduled for a repeated call, and
// domain.ErrDeliveryNotFailed when failure cannot be confirmed.
func (c *RescheduleCoordinator) Reschedule(ctx context.Context, originalID string) (string, error) {
	original, err := c.requests.Request(ctx, originalID)
	if err != nil {
		return "", fmt.Errorf("load request %s: %w", originalID, err)
	}

	done, err := c.ledger.Contains(ctx, originalID, domain.StageReschedule)
	if err != nil {
		return "", fmt.Errorf("ledger lookup for %s: %w", originalID, err)
	}
	if done {
		return "", fmt.Errorf("request %s: %w", originalID, domain.ErrAlreadyRescheduled)
	}

	delivery, err := c.deliveries.FindByRequest(ctx, originalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("request %s has no delivery to check: %w", originalID, domain.ErrDeliveryNotFailed)
		}
		return "", fmt.Errorf("find delivery for request %s: %w", originalID, err)
	}
	if delivery.Shipping.ShipmentID == "" {
		return "", fmt.Errorf("request %s has no shipment id: %w", originalID, domain.ErrDeliveryNotFailed)
	}

	token, err := c.tracker.Authenticate(ctx)
	if err != nil {
		return "", fmt.Errorf("authenticate tracker: %w", err)
	}
	status, err := c.tracker.Status(ctx, delivery.Shipping.ShipmentID, token)
	if err != nil {
		return "", fmt.Errorf("track shipment %s: %w", delivery.Shipping.ShipmentID, err)
	}
	if !status.Failed() {
		return "", fmt.Errorf("shipment %s is %q: %w", delivery.Shipping.ShipmentID, status.Label, domain.ErrDeliveryNotFailed)
	}

	return c.clone(ctx, original)
}

// clone inserts the copy first and marks the ledger second; a crash in
// between allows one repeated reschedule rather than a lost one.
func (c *RescheduleCoordinator) clone(ctx context.Context, original *domain.BeneficiaryRequest) (string, error) {
	now := time.Now().UTC()
	fresh := *original
	fresh.ID = uuid.NewString()
	fresh.Status = domain.StatusPending
	fresh.Assigned = domain.AssignedDetails{
		AssetIDs: []string{},
		Status:   domain.StatusPending,
		Date:     now,
	}
	fresh.Verification = nil
	fresh.RescheduledFrom = original.ID
	fresh.CreatedAt = now

	if err := c.requests.Insert(ctx, fresh); err != nil {
		return "", fmt.Errorf("insert rescheduled request: %w", err)
	}

	if err := c.ledger.Mark(ctx, original.ID, domain.StageReschedule); err != nil {
		c.logger.Error("reschedule ledger mark failed", "request", original.ID, "error", err)
	}

	c.logger.Info("request rescheduled", "original", original.ID, "new", fresh.ID)
	return fresh.ID, nil
}

// SweepFailedShipments scans in-progress deliveries, classifies their
// courier status, notifies the parties and reschedules the linked
// request for each confirmed failure. Per-shipment errors are logged
// and skipped; the sweep itself never aborts mid-list.
func (c *RescheduleCoordinator) SweepFailedShipments(ctx context.Context) error {
	token, err := c.tracker.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authenticate tracker: %w", err)
	}

	deliveries, err := c.deliveries.ListInProgress(ctx)
	if err != nil {
		return fmt.Errorf("list in-progress deliveries: %w", err)
	}

	for _, d := range deliveries {
		if d.Shipping.ShipmentID == "" {
			continue
		}

		status, err := c.tracker.Status(ctx, d.Shipping.ShipmentID, token)
		if err != nil {
			c.logger.Error("track shipment", "shipment", d.Shipping.ShipmentID, "error", err)
			continue
		}
		if !status.Failed() {
			continue
		}

		if d.BeneficiaryRequestID == "" {
			c.logger.Warn("failed shipment has no linked request", "shipment", d.Shipping.ShipmentID)
			continue
		}

		done, err := c.ledger.Contains(ctx, d.BeneficiaryRequestID, domain.StageReschedule)
		if err != nil {
			c.logger.Error("ledger lookup", "request", d.BeneficiaryRequestID, "error", err)
			continue
		}
		if done {
			continue
		}

		original, err := c.requests.Request(ctx, d.BeneficiaryRequestID)
		if err != nil {
			c.logger.Error("load request for failed shipment", "request", d.BeneficiaryRequestID, "error", err)
			continue
		}

		if err := c.channel.Send(ctx, fmt.Sprintf(
			"Delivery failed for shipment %s (tracking %s). The request %s will be rescheduled.",
			d.Shipping.ShipmentID, d.TrackingID(), original.ID,
		), true); err != nil {
			c.logger.Error("send failure notice", "shipment", d.Shipping.ShipmentID, "error", err)
		}

		if _, err := c.clone(ctx, original); err != nil {
			c.logger.Error("reschedule after failed shipment", "request", original.ID, "error", err)
		}
	}

	return nil
}
