package migration

import (
	auditdomain "github.com/smallbiznis/bloodbridge/internal/audit/domain"
	"github.com/smallbiznis/bloodbridge/internal/config"
	donordomain "github.com/smallbiznis/bloodbridge/internal/donor/domain"
	invdomain "github.com/smallbiznis/bloodbridge/internal/inventory/domain"
	orgdomain "github.com/smallbiznis/bloodbridge/internal/organization/domain"
	"github.com/smallbiznis/bloodbridge/internal/seed"
	logdomain "github.com/smallbiznis/bloodbridge/internal/translog/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if conn.Dialector.Name() == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite and mysql environments are for local development;
			// let gorm derive the schema from the models.
			if err := conn.AutoMigrate(
				&orgdomain.Organization{},
				&donordomain.Donor{},
				&logdomain.TransactionLog{},
				&invdomain.InventoryRow{},
				&auditdomain.AuditLog{},
			); err != nil {
				return err
			}
		}

		if cfg.Bootstrap.SeedDemoData {
			return seed.EnsureDemoData(conn)
		}
		return nil
	}),
)
