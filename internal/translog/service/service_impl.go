package service

import (
	"context"

	"github.com/smallbiznis/bloodbridge/internal/actor"
	donordomain "github.com/smallbiznis/bloodbridge/internal/donor/domain"
	"github.com/smallbiznis/bloodbridge/internal/translog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Repo   domain.Repository
	Donors donordomain.Repository
}

type service struct {
	db     *gorm.DB
	log    *zap.Logger
	repo   domain.Repository
	donors donordomain.Repository
}

func New(p Params) domain.ViewService {
	return &service{
		db:     p.DB,
		log:    p.Log.Named("translog.views"),
		repo:   p.Repo,
		donors: p.Donors,
	}
}

func (s *service) ListAll(ctx context.Context, filter domain.ListRequestFilter) ([]*domain.RequestView, error) {
	return s.repo.ListLatest(ctx, s.db, filter)
}

func (s *service) ListMine(ctx context.Context) ([]*domain.RequestView, error) {
	caller, ok := actor.FromContext(ctx)
	if !ok {
		return nil, domain.ErrMissingActor
	}
	return s.repo.ListLatest(ctx, s.db, domain.ListRequestFilter{
		RequesterEntityID: caller.EntityID(),
	})
}

func (s *service) ListBankQueue(ctx context.Context) ([]*domain.RequestView, error) {
	caller, ok := actor.FromContext(ctx)
	if !ok {
		return nil, domain.ErrMissingActor
	}
	if caller.Role != actor.RoleBloodBank {
		return nil, domain.ErrForbiddenRole
	}
	return s.repo.ListOpenForBank(ctx, s.db, caller.OrgID)
}

func (s *service) ListFulfilledHistory(ctx context.Context) ([]*domain.RequestView, error) {
	caller, ok := actor.FromContext(ctx)
	if !ok {
		return nil, domain.ErrMissingActor
	}
	actorType := domain.EntityBloodBank
	if caller.Role == actor.RoleDonor {
		actorType = domain.EntityDonor
	}
	return s.repo.ListFulfilledBy(ctx, s.db, actorType, caller.EntityID())
}

func (s *service) ListDonorVisible(ctx context.Context) ([]*domain.RequestView, error) {
	caller, ok := actor.FromContext(ctx)
	if !ok {
		return nil, domain.ErrMissingActor
	}
	if caller.Role != actor.RoleDonor {
		return nil, domain.ErrForbiddenRole
	}

	donor, err := s.donors.FindByID(ctx, s.db, caller.DonorID)
	if err != nil {
		return nil, err
	}
	if donor == nil {
		return nil, domain.ErrUnknownDonor
	}
	return s.repo.ListOpenForDonor(ctx, s.db, donor.DonorID)
}
