package repository

import (
	"context"

	"github.com/smallbiznis/bloodbridge/internal/inventory/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertVersion(ctx context.Context, db *gorm.DB, row *domain.InventoryRow) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO inventory (id, org_id, blood_type, component, units, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		row.ID,
		row.OrgID,
		row.BloodType,
		row.Component,
		row.Units,
		row.UpdatedAt,
	).Error
}

func (r *repo) CurrentUnits(ctx context.Context, db *gorm.DB, orgID, bloodType, component string) (int64, error) {
	var units int64
	err := db.WithContext(ctx).Raw(
		`SELECT units FROM inventory
		 WHERE org_id = ? AND blood_type = ? AND component = ?
		 ORDER BY updated_at DESC, id DESC
		 LIMIT 1`,
		orgID,
		bloodType,
		component,
	).Scan(&units).Error
	if err != nil {
		return 0, err
	}
	return units, nil
}

func (r *repo) ListCurrent(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.CurrentStock, error) {
	query := `
		SELECT i.org_id, o.name AS org_name, i.blood_type, i.component, i.units, i.updated_at
		FROM (
			SELECT org_id, blood_type, component, units, updated_at,
			       ROW_NUMBER() OVER (
			           PARTITION BY org_id, blood_type, component
			           ORDER BY updated_at DESC, id DESC
			       ) AS rn
			FROM inventory
		) i
		LEFT JOIN organizations o ON o.org_id = i.org_id
		WHERE i.rn = 1`
	args := []any{}
	if filter.OrgID != "" {
		query += ` AND i.org_id = ?`
		args = append(args, filter.OrgID)
	}
	if filter.BloodType != "" {
		query += ` AND i.blood_type = ?`
		args = append(args, filter.BloodType)
	}
	if filter.Component != "" {
		query += ` AND i.component = ?`
		args = append(args, filter.Component)
	}
	query += ` ORDER BY i.org_id ASC, i.blood_type ASC, i.component ASC`

	var rows []*domain.CurrentStock
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
