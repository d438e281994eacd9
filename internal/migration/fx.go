package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/carebridge/revcycle/internal/config"
	"github.com/carebridge/revcycle/internal/seed"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			if err := AutoMigrate(conn); err != nil {
				return err
			}
		}

		if cfg.SeedDemoData {
			return seed.EnsureDemoData(conn, cfg.DefaultOrgID)
		}
		return nil
	}),
)
