package actor

import (
	"context"
	"strings"
)

// Role is the closed set of actor roles the lifecycle engine recognizes.
// The upstream authentication collaborator resolves credentials into one of
// these; this service trusts the resolved identity outright.
type Role string

const (
	RoleHospital  Role = "Hospital"
	RoleBloodBank Role = "BloodBank"
	RoleDonor     Role = "Donor"
)

// ParseRole maps a raw role claim onto the closed role set.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "hospital":
		return RoleHospital, true
	case "bloodbank", "bank", "blood_bank":
		return RoleBloodBank, true
	case "donor":
		return RoleDonor, true
	default:
		return "", false
	}
}

// Actor is a resolved identity: organization-backed for hospitals and banks,
// donor-backed for donors.
type Actor struct {
	Role    Role
	OrgID   string
	DonorID string
}

// EntityID returns the identifier the transaction log records for this actor.
func (a Actor) EntityID() string {
	if a.Role == RoleDonor {
		return a.DonorID
	}
	return a.OrgID
}

func (a Actor) IsOrg() bool {
	return a.Role == RoleHospital || a.Role == RoleBloodBank
}

type actorKey struct{}

// WithActor stores the resolved actor in the context.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// FromContext returns the resolved actor, if present.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
