package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidBloodType = errors.New("invalid_blood_type")
	ErrInvalidComponent = errors.New("invalid_component")
	ErrInvalidUnits     = errors.New("invalid_units")
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidOrg       = errors.New("invalid_org")
)

// Actions accepted by Adjust.
const (
	ActionSet    = "set"
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionDelete = "delete"
)

// InventoryRow is one append-only version of an org's stock for a
// (blood type, component) pair. The newest row per triple is the
// current balance.
type InventoryRow struct {
	ID        snowflake.ID `gorm:"column:id;primaryKey" json:"id"`
	OrgID     string       `gorm:"column:org_id" json:"org_id"`
	BloodType string       `gorm:"column:blood_type" json:"blood_type"`
	Component string       `gorm:"column:component" json:"component"`
	Units     int64        `gorm:"column:units" json:"units"`
	UpdatedAt time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (InventoryRow) TableName() string {
	return "inventory"
}

var validBloodTypes = map[string]struct{}{
	"A+": {}, "A-": {}, "B+": {}, "B-": {},
	"AB+": {}, "AB-": {}, "O+": {}, "O-": {},
}

var canonicalComponents = map[string]string{
	"rbc":       "RBC",
	"plasma":    "Plasma",
	"platelets": "Platelets",
	"whole":     "Whole",
}

// NormalizeBloodType trims and upper-cases, then checks against the
// eight ABO/Rh types.
func NormalizeBloodType(raw string) (string, error) {
	bt := strings.ToUpper(strings.TrimSpace(raw))
	if _, ok := validBloodTypes[bt]; !ok {
		return "", ErrInvalidBloodType
	}
	return bt, nil
}

// CanonicalComponent maps case-insensitive component names to their
// stored spelling.
func CanonicalComponent(raw string) (string, error) {
	component, ok := canonicalComponents[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", ErrInvalidComponent
	}
	return component, nil
}

type AdjustRequest struct {
	OrgID     string
	BloodType string
	Component string
	Action    string
	Units     int64
}

type ListFilter struct {
	OrgID     string
	BloodType string
	Component string
}

// CurrentStock is the newest balance for one (org, blood type, component).
type CurrentStock struct {
	OrgID     string    `json:"org_id"`
	OrgName   string    `json:"org_name,omitempty"`
	BloodType string    `json:"blood_type"`
	Component string    `json:"component"`
	Units     int64     `json:"units"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Repository interface {
	InsertVersion(ctx context.Context, db *gorm.DB, row *InventoryRow) error
	CurrentUnits(ctx context.Context, db *gorm.DB, orgID, bloodType, component string) (int64, error)
	ListCurrent(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*CurrentStock, error)
}

type Service interface {
	// ApplyDelta appends a version with balance max(0, current+delta)
	// inside the caller's transaction and returns the new balance.
	ApplyDelta(ctx context.Context, tx *gorm.DB, orgID, bloodType, component string, delta int64) (int64, error)
	Adjust(ctx context.Context, req AdjustRequest) (*CurrentStock, error)
	CurrentUnits(ctx context.Context, tx *gorm.DB, orgID, bloodType, component string) (int64, error)
	ListCurrent(ctx context.Context, filter ListFilter) ([]*CurrentStock, error)
}
