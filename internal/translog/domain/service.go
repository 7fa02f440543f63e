package domain

import (
	"context"
	"errors"
)

var (
	ErrMissingActor  = errors.New("missing_actor")
	ErrForbiddenRole = errors.New("forbidden_role")
	ErrUnknownDonor  = errors.New("unknown_donor")
)

// ViewService serves the read projections over the transaction log.
// The calling actor travels in the context.
type ViewService interface {
	ListAll(ctx context.Context, filter ListRequestFilter) ([]*RequestView, error)
	ListMine(ctx context.Context) ([]*RequestView, error)
	ListBankQueue(ctx context.Context) ([]*RequestView, error)
	ListFulfilledHistory(ctx context.Context) ([]*RequestView, error)
	ListDonorVisible(ctx context.Context) ([]*RequestView, error)
}
