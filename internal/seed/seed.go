package seed

import (
	"time"

	donordomain "github.com/smallbiznis/bloodbridge/internal/donor/domain"
	orgdomain "github.com/smallbiznis/bloodbridge/internal/organization/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsureDemoData installs a small set of organizations and donors for
// local development. Inserts are idempotent.
func EnsureDemoData(db *gorm.DB) error {
	now := time.Now().UTC()

	orgs := []orgdomain.Organization{
		{
			OrgID:   "hops-001",
			OrgType: orgdomain.OrgTypeHospital,
			Name:    "St. Mary General Hospital",
			City:    "Springfield",
			State:   "IL",
		},
		{
			OrgID:   "hops-002",
			OrgType: orgdomain.OrgTypeHospital,
			Name:    "Riverside Medical Center",
			City:    "Peoria",
			State:   "IL",
		},
		{
			OrgID:   "bank-001",
			OrgType: orgdomain.OrgTypeBloodBank,
			Name:    "Central Illinois Blood Bank",
			City:    "Springfield",
			State:   "IL",
		},
		{
			OrgID:   "bank-002",
			OrgType: orgdomain.OrgTypeBloodBank,
			Name:    "Prairie State Blood Services",
			City:    "Champaign",
			State:   "IL",
		},
	}
	for i := range orgs {
		orgs[i].CreatedAt = now
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&orgs).Error; err != nil {
		return err
	}

	donors := []donordomain.Donor{
		{
			DonorID:   "donor-001",
			FirstName: "Alice",
			LastName:  "Nguyen",
			BloodType: "O-",
			Age:       34,
			City:      "Springfield",
			State:     "IL",
			Level:     3,
		},
		{
			DonorID:   "donor-002",
			FirstName: "Marcus",
			LastName:  "Webb",
			BloodType: "A+",
			Age:       41,
			City:      "Peoria",
			State:     "IL",
			Level:     1,
		},
		{
			DonorID:   "donor-003",
			FirstName: "Priya",
			LastName:  "Raman",
			BloodType: "B+",
			Age:       28,
			City:      "Champaign",
			State:     "IL",
			Level:     2,
		},
	}
	for i := range donors {
		donors[i].CreatedAt = now
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&donors).Error
}
