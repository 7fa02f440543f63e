package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrMissingActor      = errors.New("missing_actor")
	ErrForbiddenRole     = errors.New("forbidden_role")
	ErrRequestNotFound   = errors.New("request_not_found")
	ErrConflict          = errors.New("request_conflict")
	ErrInvalidUnits      = errors.New("invalid_units")
	ErrInvalidAudience   = errors.New("invalid_audience")
	ErrInvalidDriveDate  = errors.New("invalid_drive_date")
	ErrMissingLocation   = errors.New("missing_location")
	ErrUnknownDonor      = errors.New("unknown_donor")
)

// Outcomes reported by lifecycle actions.
const (
	OutcomeFulfilled          = "fulfilled"
	OutcomePartiallyFulfilled = "partially_fulfilled"
	OutcomeRejected           = "rejected"
	OutcomeClosed             = "closed"
	OutcomeNoOp               = "no_op"
)

type OpenEmergencyRequest struct {
	BloodType string
	Component string
	Units     int64
	RequestTo string
	Notes     string
}

type OpenBloodDriveRequest struct {
	Location  string
	DriveDate time.Time
}

type BankAcceptRequest struct {
	RequestID string
	// Units caps the fill; nil means fill as much as requested.
	Units *int64
}

type BankRejectRequest struct {
	RequestID string
	Note      string
}

type OpenResult struct {
	RequestID     string `json:"request_id"`
	TransactionID string `json:"transaction_id"`
}

// ActionResult reports what a lifecycle action did. A no_op outcome
// means the actor had already decided or nothing was claimable.
type ActionResult struct {
	Outcome        string `json:"outcome"`
	RequestID      string `json:"request_id"`
	TransactionID  string `json:"transaction_id,omitempty"`
	UnitsFulfilled int64  `json:"units_fulfilled,omitempty"`
	RemainingUnits int64  `json:"remaining_units,omitempty"`
}

type Service interface {
	OpenEmergency(ctx context.Context, req OpenEmergencyRequest) (*OpenResult, error)
	OpenBloodDrive(ctx context.Context, req OpenBloodDriveRequest) (*OpenResult, error)
	BankAccept(ctx context.Context, req BankAcceptRequest) (*ActionResult, error)
	BankReject(ctx context.Context, req BankRejectRequest) (*ActionResult, error)
	DonorAccept(ctx context.Context, requestID string) (*ActionResult, error)
	DonorReject(ctx context.Context, requestID, note string) (*ActionResult, error)
}
