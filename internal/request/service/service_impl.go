package service

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/bloodbridge/internal/actor"
	auditdomain "github.com/smallbiznis/bloodbridge/internal/audit/domain"
	"github.com/smallbiznis/bloodbridge/internal/clock"
	donordomain "github.com/smallbiznis/bloodbridge/internal/donor/domain"
	"github.com/smallbiznis/bloodbridge/internal/identifier"
	invdomain "github.com/smallbiznis/bloodbridge/internal/inventory/domain"
	"github.com/smallbiznis/bloodbridge/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/bloodbridge/internal/organization/domain"
	"github.com/smallbiznis/bloodbridge/internal/request/domain"
	logdomain "github.com/smallbiznis/bloodbridge/internal/translog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Allocator *identifier.Allocator
	Logs      logdomain.Repository
	Inventory invdomain.Service
	Orgs      orgdomain.Repository
	Donors    donordomain.Repository
	Audit     auditdomain.Service
	Metrics   *metrics.Metrics
}

type service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	allocator *identifier.Allocator
	logs      logdomain.Repository
	inventory invdomain.Service
	orgs      orgdomain.Repository
	donors    donordomain.Repository
	audit     auditdomain.Service
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &service{
		db:        p.DB,
		log:       p.Log.Named("request.service"),
		clock:     p.Clock,
		allocator: p.Allocator,
		logs:      p.Logs,
		inventory: p.Inventory,
		orgs:      p.Orgs,
		donors:    p.Donors,
		audit:     p.Audit,
		metrics:   p.Metrics,
	}
}

// OpenEmergency appends the initial OPEN row of a new request. Hospitals
// and blood banks can both raise emergencies; the requester role picks
// the request identifier prefix.
func (s *service) OpenEmergency(ctx context.Context, req domain.OpenEmergencyRequest) (*domain.OpenResult, error) {
	caller, ok := actor.FromContext(ctx)
	if !ok {
		return nil, domain.ErrMissingActor
	}
	if !caller.IsOrg() {
		return nil, domain.ErrForbiddenRole
	}

	bloodType, err := invdomain.NormalizeBloodType(req.BloodType)
	if err != nil {
		return nil, err
	}
	component, err := invdomain.CanonicalComponent(req.Component)
	if err != nil {
		return nil, err
	}
	if req.Units < 1 {
		return nil, domain.ErrInvalidUnits
	}

	audience := strings.TrimSpace(req.RequestTo)
	switch audience {
	case "":
		audience = logdomain.AudienceBloodBank
	case logdomain.AudienceHospital, logdomain.AudienceBloodBank, logdomain.AudienceDonor:
	default:
		return nil, domain.ErrInvalidAudience
	}

	requesterType := logdomain.EntityHospital
	prefix := identifier.PrefixHospital
	if caller.Role == actor.RoleBloodBank {
		requesterType = logdomain.EntityBloodBank
		prefix = identifier.PrefixBank
	}

	var notes *string
	if trimmed := strings.TrimSpace(req.Notes); trimmed != "" {
		notes = &trimmed
	}

	var result *domain.OpenResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		requestID, err := s.allocator.RequestID(ctx, tx, prefix)
		if err != nil {
			return err
		}
		transactionID, err := s.allocator.TransactionID(ctx, tx, caller.OrgID)
		if err != nil {
			return err
		}

		row := logdomain.NewOpenEmergency(
			transactionID, requestID, requesterType, caller.OrgID,
			bloodType, component, req.Units, audience, notes,
			s.clock.Now(),
		)
		if err := s.logs.InsertRow(ctx, tx, row); err != nil {
			return err
		}
		result = &domain.OpenResult{RequestID: requestID, TransactionID: transactionID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRequestOpened(ctx, "emergency", audience)
	s.audit.Record(ctx, auditdomain.Entry{
		Action:       "request.open_emergency",
		ResourceType: "request",
		ResourceID:   result.RequestID,
		ActorType:    requesterType,
		ActorID:      caller.OrgID,
		Metadata: map[string]any{
			"blood_type": bloodType,
			"component":  component,
			"units":      req.Units,
			"request_to": audience,
		},
	})
	s.log.Info("emergency request opened",
		zap.String("request_id", result.RequestID),
		zap.String("requester", caller.OrgID),
		zap.String("blood_type", bloodType),
		zap.Int64("units", req.Units),
	)
	return result, nil
}

// OpenBloodDrive appends a donor-audience drive announcement. The drive
// date lands in requested_at at midnight UTC and the location in notes.
func (s *service) OpenBloodDrive(ctx context.Context, req domain.OpenBloodDriveRequest) (*domain.OpenResult, error) {
	caller, ok := actor.FromContext(ctx)
	if !ok {
		return nil, domain.ErrMissingActor
	}
	if !caller.IsOrg() {
		return nil, domain.ErrForbiddenRole
	}

	location := strings.TrimSpace(req.Location)
	if location == "" {
		return nil, domain.ErrMissingLocation
	}
	if req.DriveDate.IsZero() {
		return nil, domain.ErrInvalidDriveDate
	}
	driveDate := time.Date(
		req.DriveDate.Year(), req.DriveDate.Month(), req.DriveDate.Day(),
		0, 0, 0, 0, time.UTC,
	)

	requesterType := logdomain.EntityHospital
	prefix := identifier.PrefixHospital
	if caller.Role == actor.RoleBloodBank {
		requesterType = logdomain.EntityBloodBank
		prefix = identifier.PrefixBank
	}

	var result *domain.OpenResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		requestID, err := s.allocator.RequestID(ctx, tx, prefix)
		if err != nil {
			return err
		}
		transactionID, err := s.allocator.TransactionID(ctx, tx, caller.OrgID)
		if err != nil {
			return err
		}

		row := logdomain.NewOpenDrive(transactionID, requestID, requesterType, caller.OrgID, location, driveDate)
		if err := s.logs.InsertRow(ctx, tx, row); err != nil {
			return err
		}
		result = &domain.OpenResult{RequestID: requestID, TransactionID: transactionID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRequestOpened(ctx, "drive", logdomain.AudienceDonor)
	s.audit.Record(ctx, auditdomain.Entry{
		Action:       "request.open_drive",
		ResourceType: "request",
		ResourceID:   result.RequestID,
		ActorType:    requesterType,
		ActorID:      caller.OrgID,
		Metadata: map[string]any{
			"location":   location,
			"drive_date": driveDate.Format("2006-01-02"),
		},
	})
	return result, nil
}

// BankAccept claims the open row and fills it from the bank's stock.
// Short stock splits the request: the claimed row settles FULFILLED for
// the given units and a fresh OPEN row carries the balance.
func (s *service) BankAccept(ctx context.Context, req domain.BankAcceptRequest) (*domain.ActionResult, error) {
	caller, ok := actor.FromContext(ctx)
	if !ok {
		return nil, domain.ErrMissingActor
	}
	if caller.Role != actor.RoleBloodBank {
		return nil, domain.ErrForbiddenRole
	}
	if req.Units != nil && *req.Units < 1 {
		return nil, domain.ErrInvalidUnits
	}

	var result *domain.ActionResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		exists, err := s.logs.RequestExists(ctx, tx, req.RequestID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrRequestNotFound
		}

		decided, err := s.logs.HasActorDecided(ctx, tx, req.RequestID, logdomain.EntityBloodBank, caller.OrgID)
		if err != nil {
			return err
		}
		if decided {
			result = &domain.ActionResult{Outcome: domain.OutcomeNoOp, RequestID: req.RequestID}
			return nil
		}

		open, err := s.logs.LockCurrentOpenRow(ctx, tx, req.RequestID, logdomain.AudienceBloodBank)
		if err != nil {
			return err
		}
		if open == nil {
			result = &domain.ActionResult{Outcome: domain.OutcomeNoOp, RequestID: req.RequestID}
			return nil
		}
		if open.BloodType == nil || open.Component == nil || open.UnitsRequested == nil {
			result = &domain.ActionResult{Outcome: domain.OutcomeNoOp, RequestID: req.RequestID}
			return nil
		}

		available, err := s.inventory.CurrentUnits(ctx, tx, caller.OrgID, *open.BloodType, *open.Component)
		if err != nil {
			return err
		}
		if available < 1 {
			// Empty shelf reads the same as nothing to claim; no
			// decision is recorded so the bank can retry after
			// restocking.
			result = &domain.ActionResult{Outcome: domain.OutcomeNoOp, RequestID: req.RequestID}
			return nil
		}

		need := *open.UnitsRequested
		fill := need
		if req.Units != nil {
			fill = *req.Units
		}
		give := need
		if fill < give {
			give = fill
		}
		if available < give {
			give = available
		}
		if give < 1 {
			give = 1
		}

		if _, err := s.inventory.ApplyDelta(ctx, tx, caller.OrgID, *open.BloodType, *open.Component, -give); err != nil {
			return err
		}

		now := s.clock.Now()
		if err := s.logs.MarkFulfilled(ctx, tx, open.TransactionID, logdomain.EntityBloodBank, caller.OrgID, give, now); err != nil {
			return err
		}

		if give >= need {
			result = &domain.ActionResult{
				Outcome:        domain.OutcomeFulfilled,
				RequestID:      req.RequestID,
				TransactionID:  open.TransactionID,
				UnitsFulfilled: give,
			}
			return nil
		}

		remainderID, err := s.allocator.TransactionID(ctx, tx, open.RequesterEntityID)
		if err != nil {
			return err
		}
		remaining := need - give
		remainder := logdomain.NewRemainder(open, remainderID, remaining)
		if err := s.logs.InsertRow(ctx, tx, remainder); err != nil {
			return err
		}
		result = &domain.ActionResult{
			Outcome:        domain.OutcomePartiallyFulfilled,
			RequestID:      req.RequestID,
			TransactionID:  open.TransactionID,
			UnitsFulfilled: give,
			RemainingUnits: remaining,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordBankDecision(ctx, "accept", result.Outcome)
	if result.Outcome == domain.OutcomeFulfilled {
		s.metrics.RecordRequestClosed(ctx, result.Outcome)
	}
	if result.Outcome != domain.OutcomeNoOp {
		s.audit.Record(ctx, auditdomain.Entry{
			Action:       "request.bank_accept",
			ResourceType: "request",
			ResourceID:   req.RequestID,
			ActorType:    logdomain.EntityBloodBank,
			ActorID:      caller.OrgID,
			Metadata: map[string]any{
				"outcome":         result.Outcome,
				"units_fulfilled": result.UnitsFulfilled,
				"remaining_units": result.RemainingUnits,
			},
		})
		s.log.Info("bank accepted request",
			zap.String("request_id", req.RequestID),
			zap.String("bank", caller.OrgID),
			zap.String("outcome", result.Outcome),
			zap.Int64("units_fulfilled", result.UnitsFulfilled),
		)
	}
	return result, nil
}

// BankReject appends an additive rejection row. When every registered
// blood bank has rejected, the live OPEN row flips to REJECTED and the
// request closes globally.
func (s *service) BankReject(ctx context.Context, req domain.BankRejectRequest) (*domain.ActionResult, error) {
	caller, ok := actor.FromContext(ctx)
	if !ok {
		return nil, domain.ErrMissingActor
	}
	if caller.Role != actor.RoleBloodBank {
		return nil, domain.ErrForbiddenRole
	}

	var note *string
	if trimmed := strings.TrimSpace(req.Note); trimmed != "" {
		note = &trimmed
	}

	var result *domain.ActionResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		exists, err := s.logs.RequestExists(ctx, tx, req.RequestID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrRequestNotFound
		}

		decided, err := s.logs.HasActorDecided(ctx, tx, req.RequestID, logdomain.EntityBloodBank, caller.OrgID)
		if err != nil {
			return err
		}
		if decided {
			result = &domain.ActionResult{Outcome: domain.OutcomeNoOp, RequestID: req.RequestID}
			return nil
		}

		open, err := s.logs.LockCurrentOpenRow(ctx, tx, req.RequestID, logdomain.AudienceBloodBank)
		if err != nil {
			return err
		}
		if open == nil {
			result = &domain.ActionResult{Outcome: domain.OutcomeNoOp, RequestID: req.RequestID}
			return nil
		}

		now := s.clock.Now()
		rejectionID, err := s.allocator.TransactionID(ctx, tx, caller.OrgID)
		if err != nil {
			return err
		}
		rejection := logdomain.NewRejection(open, rejectionID, logdomain.EntityBloodBank, caller.OrgID, note, now)
		if err := s.logs.InsertRow(ctx, tx, rejection); err != nil {
			return err
		}

		rejecting, err := s.logs.CountDistinctRejectingBanks(ctx, tx, req.RequestID)
		if err != nil {
			return err
		}
		totalBanks, err := s.orgs.CountByType(ctx, tx, orgdomain.OrgTypeBloodBank)
		if err != nil {
			return err
		}
		if totalBanks > 0 && rejecting >= totalBanks {
			if err := s.logs.MarkRejectedClosure(ctx, tx, open.TransactionID, now); err != nil {
				return err
			}
			result = &domain.ActionResult{
				Outcome:       domain.OutcomeClosed,
				RequestID:     req.RequestID,
				TransactionID: rejectionID,
			}
			return nil
		}

		result = &domain.ActionResult{
			Outcome:       domain.OutcomeRejected,
			RequestID:     req.RequestID,
			TransactionID: rejectionID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordBankDecision(ctx, "reject", result.Outcome)
	if result.Outcome == domain.OutcomeClosed {
		s.metrics.RecordRequestClosed(ctx, result.Outcome)
	}
	if result.Outcome != domain.OutcomeNoOp {
		s.audit.Record(ctx, auditdomain.Entry{
			Action:       "request.bank_reject",
			ResourceType: "request",
			ResourceID:   req.RequestID,
			ActorType:    logdomain.EntityBloodBank,
			ActorID:      caller.OrgID,
			Metadata:     map[string]any{"outcome": result.Outcome},
		})
	}
	return result, nil
}

// DonorAccept claims the open donor-audience row exclusively. Losing the
// claim, or having already decided, surfaces as a conflict.
func (s *service) DonorAccept(ctx context.Context, requestID string) (*domain.ActionResult, error) {
	caller, ok := actor.FromContext(ctx)
	if !ok {
		return nil, domain.ErrMissingActor
	}
	if caller.Role != actor.RoleDonor {
		return nil, domain.ErrForbiddenRole
	}

	var result *domain.ActionResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		donor, err := s.donors.FindByID(ctx, tx, caller.DonorID)
		if err != nil {
			return err
		}
		if donor == nil {
			return domain.ErrUnknownDonor
		}

		exists, err := s.logs.RequestExists(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrRequestNotFound
		}

		decided, err := s.logs.HasActorDecided(ctx, tx, requestID, logdomain.EntityDonor, caller.DonorID)
		if err != nil {
			return err
		}
		if decided {
			return domain.ErrConflict
		}

		open, err := s.logs.LockCurrentOpenRow(ctx, tx, requestID, logdomain.AudienceDonor)
		if err != nil {
			return err
		}
		if open == nil {
			return domain.ErrConflict
		}

		if err := s.logs.MarkFulfilled(ctx, tx, open.TransactionID, logdomain.EntityDonor, caller.DonorID, 1, s.clock.Now()); err != nil {
			return err
		}
		result = &domain.ActionResult{
			Outcome:        domain.OutcomeFulfilled,
			RequestID:      requestID,
			TransactionID:  open.TransactionID,
			UnitsFulfilled: 1,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordDonorDecision(ctx, "accept", result.Outcome)
	s.metrics.RecordRequestClosed(ctx, result.Outcome)
	s.audit.Record(ctx, auditdomain.Entry{
		Action:       "request.donor_accept",
		ResourceType: "request",
		ResourceID:   requestID,
		ActorType:    logdomain.EntityDonor,
		ActorID:      caller.DonorID,
		Metadata:     map[string]any{"outcome": result.Outcome},
	})
	s.log.Info("donor accepted request",
		zap.String("request_id", requestID),
		zap.String("donor", caller.DonorID),
	)
	return result, nil
}

// DonorReject appends an additive rejection. Donor rejections never
// close a request globally.
func (s *service) DonorReject(ctx context.Context, requestID, note string) (*domain.ActionResult, error) {
	caller, ok := actor.FromContext(ctx)
	if !ok {
		return nil, domain.ErrMissingActor
	}
	if caller.Role != actor.RoleDonor {
		return nil, domain.ErrForbiddenRole
	}

	var rejectionNote *string
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		rejectionNote = &trimmed
	}

	var result *domain.ActionResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		exists, err := s.logs.RequestExists(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrRequestNotFound
		}

		decided, err := s.logs.HasActorDecided(ctx, tx, requestID, logdomain.EntityDonor, caller.DonorID)
		if err != nil {
			return err
		}
		if decided {
			result = &domain.ActionResult{Outcome: domain.OutcomeNoOp, RequestID: requestID}
			return nil
		}

		open, err := s.logs.LockCurrentOpenRow(ctx, tx, requestID, logdomain.AudienceDonor)
		if err != nil {
			return err
		}
		if open == nil {
			result = &domain.ActionResult{Outcome: domain.OutcomeNoOp, RequestID: requestID}
			return nil
		}

		rejectionID, err := s.allocator.TransactionID(ctx, tx, caller.DonorID)
		if err != nil {
			return err
		}
		rejection := logdomain.NewRejection(open, rejectionID, logdomain.EntityDonor, caller.DonorID, rejectionNote, s.clock.Now())
		if err := s.logs.InsertRow(ctx, tx, rejection); err != nil {
			return err
		}
		result = &domain.ActionResult{
			Outcome:       domain.OutcomeRejected,
			RequestID:     requestID,
			TransactionID: rejectionID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordDonorDecision(ctx, "reject", result.Outcome)
	if result.Outcome != domain.OutcomeNoOp {
		s.audit.Record(ctx, auditdomain.Entry{
			Action:       "request.donor_reject",
			ResourceType: "request",
			ResourceID:   requestID,
			ActorType:    logdomain.EntityDonor,
			ActorID:      caller.DonorID,
			Metadata:     map[string]any{"outcome": result.Outcome},
		})
	}
	return result, nil
}
