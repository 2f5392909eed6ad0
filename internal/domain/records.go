package domain

import "time"

// Stage identifies one custody handoff whose quantities are reconciled.
type Stage string

const (
	StageDonorToPartner       Stage = "donor_to_partner"
	StagePartnerToBeneficiary Stage = "partner_to_beneficiary"
	// StageReschedule guards the reschedule coordinator against cloning
	// the same failed request twice.
	StageReschedule Stage = "reschedule"
)

// Outcome is the result of comparing committed against reported quantity.
type Outcome string

const (
	OutcomePending  Outcome = "Pending"
	OutcomeVerified Outcome = "Verified"
	OutcomeMismatch Outcome = "Mismatch"
)

// AssetRecord is one row of an uploaded asset sheet. Field names are
// upload-defined; the "model" field, when present, is the usual dedup key.
type AssetRecord map[string]any

// AssetBatch is an ordered upload of asset records. The record sequence
// is replaced wholesale when duplicates are auto-removed, never edited
// in place.
type AssetBatch struct {
	ID      string
	Records []AssetRecord
}

// ShippingDetails mirrors what the courier integration writes onto a
// delivery.
type ShippingDetails struct {
	OrderID    string
	ShipmentID string
	Status     string
}

// HandoffVerification is written onto a record exactly once, when its
// handoff moves out of Pending.
type HandoffVerification struct {
	Stage      Stage
	TrackingID string
	Committed  int
	Received   int
	Mismatch   int
	Outcome    Outcome
	VerifiedAt time.Time
}

// Delivery is a donor-to-partner shipment of assigned assets. Committed
// quantity is always len(AssetIDs) at verification time.
type Delivery struct {
	ID                   string
	PartnerID            string
	BeneficiaryRequestID string
	AssetIDs             []string
	Status               string
	Shipping             ShippingDetails
	Verification         *HandoffVerification
}

// TrackingID prefers the courier order id and falls back to the record id.
func (d Delivery) TrackingID() string {
	if d.Shipping.OrderID != "" {
		return d.Shipping.OrderID
	}
	return d.ID
}

// AssignedDetails carries the partner-to-beneficiary assignment state.
type AssignedDetails struct {
	AssetIDs []string
	Status   string
	Date     time.Time
}

// BeneficiaryRequest is a beneficiary's asset request. A rescheduled
// request keeps a back-reference to the request it replaces.
type BeneficiaryRequest struct {
	ID              string
	FullName        string
	PartnerID       string
	Status          string
	Assigned        AssignedDetails
	Verification    *HandoffVerification
	RescheduledFrom string
	CreatedAt       time.Time
}

// Partner, Donor and Product are directory records used only to resolve
// display names for prompts and alerts.
type Partner struct {
	ID    string
	Name  string
	Email string
}

type Donor struct {
	ID          string
	CompanyName string
	Email       string
}

type Product struct {
	ID      string
	DonorID string
	Model   string
}

// Placeholder names used when a directory lookup comes back empty.
const (
	PlaceholderPartner     = "Partner"
	PlaceholderDonor       = "Donor"
	PlaceholderBeneficiary = "Beneficiary"
)

// Record and assignment statuses as written by the upstream platform.
const (
	StatusPending    = "Pending"
	StatusApproved   = "Approved"
	StatusAssigned   = "Assigned"
	StatusDelivered  = "Delivered"
	StatusInProgress = "In-progress"
)

// ShipmentStatus is the courier-reported state of one shipment.
type ShipmentStatus struct {
	Label string
}

var failedShipmentLabels = map[string]struct{}{
	"Undelivered": {},
	"RTO":         {},
	"Failed":      {},
	"Cancelled":   {},
}

// Failed reports whether the label is one of the courier's terminal
// failure states; every other label counts as in progress or delivered.
func (s ShipmentStatus) Failed() bool {
	_, ok := failedShipmentLabels[s.Label]
	return ok
}
