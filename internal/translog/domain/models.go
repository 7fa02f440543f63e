package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Row statuses. Rows only ever move OPEN -> FULFILLED or OPEN -> REJECTED;
// rejection decisions by individual actors are recorded as additional rows.
const (
	StatusOpen      = "OPEN"
	StatusFulfilled = "FULFILLED"
	StatusRejected  = "REJECTED"
)

// Audiences a request can be addressed to. Hospital is accepted and
// stored but no fulfillment flow reads it.
const (
	AudienceHospital  = "Hospital"
	AudienceBloodBank = "BloodBank"
	AudienceDonor     = "Donor"
)

// Entity types stored in requester and fulfilled-by columns.
const (
	EntityHospital  = "Hospital"
	EntityBloodBank = "BloodBank"
	EntityDonor     = "Donor"
)

// Levels. Rows only ever store LevelEmergency or LevelDrive; LevelBoth
// is a donor-profile preference meaning "show me both" and never lands
// on a row.
const (
	LevelEmergency = 1
	LevelDrive     = 2
	LevelBoth      = 3
)

// TransactionLog is one immutable fact in the request log. A request is
// the set of rows sharing a request_id.
type TransactionLog struct {
	TransactionID         string     `gorm:"column:transaction_id;primaryKey" json:"transaction_id"`
	RequestID             string     `gorm:"column:request_id" json:"request_id"`
	RequesterEntityType   string     `gorm:"column:requester_entity_type" json:"requester_entity_type"`
	RequesterEntityID     string     `gorm:"column:requester_entity_id" json:"requester_entity_id"`
	FulfilledByEntityType *string    `gorm:"column:fulfilled_by_entity_type" json:"fulfilled_by_entity_type,omitempty"`
	FulfilledByEntityID   *string    `gorm:"column:fulfilled_by_entity_id" json:"fulfilled_by_entity_id,omitempty"`
	BloodType             *string    `gorm:"column:blood_type" json:"blood_type,omitempty"`
	Component             *string    `gorm:"column:component" json:"component,omitempty"`
	Level                 int        `gorm:"column:level" json:"level"`
	UnitsRequested        *int64     `gorm:"column:units_requested" json:"units_requested,omitempty"`
	UnitsFulfilled        *int64     `gorm:"column:units_fulfilled" json:"units_fulfilled,omitempty"`
	Status                string     `gorm:"column:status" json:"status"`
	RequestedAt           time.Time  `gorm:"column:requested_at" json:"requested_at"`
	CompletedAt           *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	Notes                 *string    `gorm:"column:notes" json:"notes,omitempty"`
	RequestTo             string     `gorm:"column:request_to" json:"request_to"`
}

func (TransactionLog) TableName() string {
	return "transaction_logs"
}

// NewOpenEmergency builds the initial OPEN row for an emergency request.
// Emergencies always carry LevelEmergency.
func NewOpenEmergency(transactionID, requestID, requesterType, requesterID, bloodType, component string, units int64, requestTo string, notes *string, requestedAt time.Time) *TransactionLog {
	return &TransactionLog{
		TransactionID:       transactionID,
		RequestID:           requestID,
		RequesterEntityType: requesterType,
		RequesterEntityID:   requesterID,
		BloodType:           &bloodType,
		Component:           &component,
		Level:               LevelEmergency,
		UnitsRequested:      &units,
		Status:              StatusOpen,
		RequestedAt:         requestedAt,
		Notes:               notes,
		RequestTo:           requestTo,
	}
}

// NewOpenDrive builds the OPEN row for a blood drive. Drives carry no
// blood type, component or unit count; the drive location travels in
// notes and the drive date in requested_at.
func NewOpenDrive(transactionID, requestID, requesterType, requesterID, location string, driveDate time.Time) *TransactionLog {
	return &TransactionLog{
		TransactionID:       transactionID,
		RequestID:           requestID,
		RequesterEntityType: requesterType,
		RequesterEntityID:   requesterID,
		Level:               LevelDrive,
		Status:              StatusOpen,
		RequestedAt:         driveDate,
		Notes:               &location,
		RequestTo:           AudienceDonor,
	}
}

// NewRejection builds the additive REJECTED row recording one actor's
// refusal. The open row is untouched unless the request closes globally.
// Rejections fulfil nothing, recorded as an explicit zero.
func NewRejection(open *TransactionLog, transactionID, actorType, actorID string, note *string, decidedAt time.Time) *TransactionLog {
	zero := int64(0)
	return &TransactionLog{
		TransactionID:         transactionID,
		RequestID:             open.RequestID,
		RequesterEntityType:   open.RequesterEntityType,
		RequesterEntityID:     open.RequesterEntityID,
		FulfilledByEntityType: &actorType,
		FulfilledByEntityID:   &actorID,
		BloodType:             open.BloodType,
		Component:             open.Component,
		Level:                 open.Level,
		UnitsRequested:        open.UnitsRequested,
		UnitsFulfilled:        &zero,
		Status:                StatusRejected,
		RequestedAt:           open.RequestedAt,
		CompletedAt:           &decidedAt,
		Notes:                 note,
		RequestTo:             open.RequestTo,
	}
}

// NewRemainder builds the fresh OPEN row carrying the unfulfilled
// balance after a partial fill. It inherits the original requested_at
// so queue ordering is preserved.
func NewRemainder(open *TransactionLog, transactionID string, remaining int64) *TransactionLog {
	return &TransactionLog{
		TransactionID:       transactionID,
		RequestID:           open.RequestID,
		RequesterEntityType: open.RequesterEntityType,
		RequesterEntityID:   open.RequesterEntityID,
		BloodType:           open.BloodType,
		Component:           open.Component,
		Level:               open.Level,
		UnitsRequested:      &remaining,
		Status:              StatusOpen,
		RequestedAt:         open.RequestedAt,
		Notes:               open.Notes,
		RequestTo:           open.RequestTo,
	}
}

// RequestView is the latest row of a request joined with requester
// metadata and the fulfilled total across all of its rows.
type RequestView struct {
	TransactionID         string     `json:"transaction_id"`
	RequestID             string     `json:"request_id"`
	RequesterEntityType   string     `json:"requester_entity_type"`
	RequesterEntityID     string     `json:"requester_entity_id"`
	RequesterName         string     `json:"requester_name,omitempty"`
	FulfilledByEntityType *string    `json:"fulfilled_by_entity_type,omitempty"`
	FulfilledByEntityID   *string    `json:"fulfilled_by_entity_id,omitempty"`
	BloodType             *string    `json:"blood_type,omitempty"`
	Component             *string    `json:"component,omitempty"`
	Level                 int        `json:"level"`
	UnitsRequested        *int64     `json:"units_requested,omitempty"`
	UnitsFulfilled        *int64     `json:"units_fulfilled,omitempty"`
	TotalFulfilled        int64      `json:"total_fulfilled"`
	Status                string     `json:"status"`
	RequestedAt           time.Time  `json:"requested_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	Notes                 *string    `json:"notes,omitempty"`
	RequestTo             string     `json:"request_to"`
}

// DisplayStatus layers the presentation-only PARTIALLY_FULFILLED label
// over the stored status when an open request already has fills.
func (v *RequestView) DisplayStatus() string {
	if v.Status == StatusOpen && v.TotalFulfilled > 0 {
		return "PARTIALLY_FULFILLED"
	}
	return v.Status
}

type ListRequestFilter struct {
	RequesterEntityID string
	Status            string
	RequestTo         string
	BloodType         string
	Search            string
}

type Repository interface {
	InsertRow(ctx context.Context, db *gorm.DB, row *TransactionLog) error
	RequestExists(ctx context.Context, db *gorm.DB, requestID string) (bool, error)

	// LockCurrentOpenRow claims the single live OPEN row of a request
	// with SKIP LOCKED. A nil row means no claimable work.
	LockCurrentOpenRow(ctx context.Context, tx *gorm.DB, requestID string, audience string) (*TransactionLog, error)

	MarkFulfilled(ctx context.Context, tx *gorm.DB, transactionID, actorType, actorID string, units int64, completedAt time.Time) error
	MarkRejectedClosure(ctx context.Context, tx *gorm.DB, transactionID string, completedAt time.Time) error

	HasActorDecided(ctx context.Context, tx *gorm.DB, requestID, actorType, actorID string) (bool, error)
	CountDistinctRejectingBanks(ctx context.Context, tx *gorm.DB, requestID string) (int64, error)

	ListLatest(ctx context.Context, db *gorm.DB, filter ListRequestFilter) ([]*RequestView, error)
	ListOpenForBank(ctx context.Context, db *gorm.DB, bankOrgID string) ([]*RequestView, error)
	ListFulfilledBy(ctx context.Context, db *gorm.DB, actorType, actorID string) ([]*RequestView, error)
	ListOpenForDonor(ctx context.Context, db *gorm.DB, donorID string) ([]*RequestView, error)
}
