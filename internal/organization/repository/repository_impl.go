package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/bloodbridge/internal/organization/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, org *domain.Organization) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO organizations (org_id, org_type, name, address, city, state, zip, phone, email, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		org.OrgID,
		org.OrgType,
		org.Name,
		org.Address,
		org.City,
		org.State,
		org.Zip,
		org.Phone,
		org.Email,
		org.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID string) (*domain.Organization, error) {
	var org domain.Organization
	err := db.WithContext(ctx).Raw(
		`SELECT org_id, org_type, name, address, city, state, zip, phone, email, created_at
		 FROM organizations WHERE org_id = ?`,
		orgID,
	).Scan(&org).Error
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(org.OrgID) == "" {
		return nil, nil
	}
	return &org, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListOrganizationFilter) ([]*domain.Organization, error) {
	var orgs []*domain.Organization
	stmt := db.WithContext(ctx).Model(&domain.Organization{})
	if filter.OrgType != "" {
		stmt = stmt.Where("org_type = ?", filter.OrgType)
	}
	if err := stmt.Order("org_id ASC").Find(&orgs).Error; err != nil {
		return nil, err
	}
	return orgs, nil
}

func (r *repo) CountByType(ctx context.Context, db *gorm.DB, orgType string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM organizations WHERE org_type = ?`,
		orgType,
	).Scan(&count).Error
	return count, err
}
