package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/bloodbridge/internal/audit/domain"
	"github.com/smallbiznis/bloodbridge/internal/clock"
	"github.com/smallbiznis/bloodbridge/internal/inventory/domain"
	"github.com/smallbiznis/bloodbridge/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Node    *snowflake.Node
	Clock   clock.Clock
	Log     *zap.Logger
	Repo    domain.Repository
	Audit   auditdomain.Service
	Metrics *metrics.Metrics
}

type service struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   clock.Clock
	log     *zap.Logger
	repo    domain.Repository
	audit   auditdomain.Service
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &service{
		db:      p.DB,
		node:    p.Node,
		clock:   p.Clock,
		log:     p.Log.Named("inventory.service"),
		repo:    p.Repo,
		audit:   p.Audit,
		metrics: p.Metrics,
	}
}

func (s *service) CurrentUnits(ctx context.Context, tx *gorm.DB, orgID, bloodType, component string) (int64, error) {
	return s.repo.CurrentUnits(ctx, tx, orgID, bloodType, component)
}

// ApplyDelta appends a version row clamped at zero. Negative balances
// never enter the ledger.
func (s *service) ApplyDelta(ctx context.Context, tx *gorm.DB, orgID, bloodType, component string, delta int64) (int64, error) {
	current, err := s.repo.CurrentUnits(ctx, tx, orgID, bloodType, component)
	if err != nil {
		return 0, err
	}

	next := current + delta
	if next < 0 {
		next = 0
	}

	row := &domain.InventoryRow{
		ID:        s.node.Generate(),
		OrgID:     orgID,
		BloodType: bloodType,
		Component: component,
		Units:     next,
		UpdatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertVersion(ctx, tx, row); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *service) Adjust(ctx context.Context, req domain.AdjustRequest) (*domain.CurrentStock, error) {
	orgID := strings.TrimSpace(req.OrgID)
	if orgID == "" {
		return nil, domain.ErrInvalidOrg
	}
	bloodType, err := domain.NormalizeBloodType(req.BloodType)
	if err != nil {
		return nil, err
	}
	component, err := domain.CanonicalComponent(req.Component)
	if err != nil {
		return nil, err
	}
	action := strings.ToLower(strings.TrimSpace(req.Action))
	if action == "" {
		action = domain.ActionSet
	}
	if req.Units < 0 {
		return nil, domain.ErrInvalidUnits
	}

	var result *domain.CurrentStock
	err = s.db.Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.CurrentUnits(ctx, tx, orgID, bloodType, component)
		if err != nil {
			return err
		}

		var next int64
		switch action {
		case domain.ActionSet:
			next = req.Units
		case domain.ActionAdd:
			next = current + req.Units
		case domain.ActionRemove:
			next = current - req.Units
		case domain.ActionDelete:
			next = 0
		default:
			return domain.ErrInvalidAction
		}
		if next < 0 {
			next = 0
		}

		now := s.clock.Now()
		row := &domain.InventoryRow{
			ID:        s.node.Generate(),
			OrgID:     orgID,
			BloodType: bloodType,
			Component: component,
			Units:     next,
			UpdatedAt: now,
		}
		if err := s.repo.InsertVersion(ctx, tx, row); err != nil {
			return err
		}

		result = &domain.CurrentStock{
			OrgID:     orgID,
			BloodType: bloodType,
			Component: component,
			Units:     next,
			UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordInventoryChange(ctx, action)
	s.audit.Record(ctx, auditdomain.Entry{
		Action:       "inventory.adjust",
		ResourceType: "inventory",
		ResourceID:   orgID,
		ActorType:    "organization",
		ActorID:      orgID,
		Metadata: map[string]any{
			"blood_type": bloodType,
			"component":  component,
			"action":     action,
			"units":      req.Units,
			"balance":    result.Units,
		},
	})
	s.log.Info("inventory adjusted",
		zap.String("org_id", orgID),
		zap.String("blood_type", bloodType),
		zap.String("component", component),
		zap.String("action", action),
		zap.Int64("balance", result.Units),
	)
	return result, nil
}

func (s *service) ListCurrent(ctx context.Context, filter domain.ListFilter) ([]*domain.CurrentStock, error) {
	if filter.BloodType != "" {
		bt, err := domain.NormalizeBloodType(filter.BloodType)
		if err != nil {
			return nil, err
		}
		filter.BloodType = bt
	}
	if filter.Component != "" {
		component, err := domain.CanonicalComponent(filter.Component)
		if err != nil {
			return nil, err
		}
		filter.Component = component
	}
	return s.repo.ListCurrent(ctx, s.db, filter)
}
