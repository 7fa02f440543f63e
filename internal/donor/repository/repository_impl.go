package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/bloodbridge/internal/donor/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, donor *domain.Donor) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO donors (donor_id, first_name, last_name, blood_type, age, gender, city, state, level, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		donor.DonorID,
		donor.FirstName,
		donor.LastName,
		donor.BloodType,
		donor.Age,
		donor.Gender,
		donor.City,
		donor.State,
		donor.Level,
		donor.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, donorID string) (*domain.Donor, error) {
	var donor domain.Donor
	err := db.WithContext(ctx).Raw(
		`SELECT donor_id, first_name, last_name, blood_type, age, gender, city, state, level, created_at
		 FROM donors WHERE donor_id = ?`,
		donorID,
	).Scan(&donor).Error
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(donor.DonorID) == "" {
		return nil, nil
	}
	return &donor, nil
}
