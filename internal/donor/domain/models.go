package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Donor is an individual who can see and accept donor-audience requests.
// Level controls visibility: 1 sees emergencies, 2 sees blood drives,
// 3 sees both.
type Donor struct {
	DonorID   string    `gorm:"column:donor_id;primaryKey" json:"donor_id"`
	FirstName string    `gorm:"column:first_name" json:"first_name"`
	LastName  string    `gorm:"column:last_name" json:"last_name"`
	BloodType string    `gorm:"column:blood_type" json:"blood_type"`
	Age       int       `gorm:"column:age" json:"age,omitempty"`
	Gender    string    `gorm:"column:gender" json:"gender,omitempty"`
	City      string    `gorm:"column:city" json:"city,omitempty"`
	State     string    `gorm:"column:state" json:"state,omitempty"`
	Level     int       `gorm:"column:level" json:"level"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Donor) TableName() string {
	return "donors"
}

func (d *Donor) SeesEmergencies() bool {
	return d.Level == 1 || d.Level == 3
}

func (d *Donor) SeesDrives() bool {
	return d.Level == 2 || d.Level == 3
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, donor *Donor) error
	FindByID(ctx context.Context, db *gorm.DB, donorID string) (*Donor, error)
}
