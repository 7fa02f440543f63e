package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

const (
	OrgTypeHospital  = "Hospital"
	OrgTypeBloodBank = "BloodBank"
)

// Organization is a hospital or blood bank registered with the exchange.
type Organization struct {
	OrgID     string    `gorm:"column:org_id;primaryKey" json:"org_id"`
	OrgType   string    `gorm:"column:org_type" json:"org_type"`
	Name      string    `gorm:"column:name" json:"name"`
	Address   string    `gorm:"column:address" json:"address,omitempty"`
	City      string    `gorm:"column:city" json:"city,omitempty"`
	State     string    `gorm:"column:state" json:"state,omitempty"`
	Zip       string    `gorm:"column:zip" json:"zip,omitempty"`
	Phone     string    `gorm:"column:phone" json:"phone,omitempty"`
	Email     string    `gorm:"column:email" json:"email,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Organization) TableName() string {
	return "organizations"
}

type ListOrganizationFilter struct {
	OrgType string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, org *Organization) error
	FindByID(ctx context.Context, db *gorm.DB, orgID string) (*Organization, error)
	List(ctx context.Context, db *gorm.DB, filter ListOrganizationFilter) ([]*Organization, error)
	CountByType(ctx context.Context, db *gorm.DB, orgType string) (int64, error)
}
