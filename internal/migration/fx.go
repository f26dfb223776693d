package migration

import (
	"strings"

	"github.com/neuron-e/api-boukii-sub004/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBRunMigrations {
			return nil
		}
		if !strings.EqualFold(cfg.DBType, "postgres") {
			log.Info("skipping embedded migrations", zap.String("db_type", cfg.DBType))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB, log.Named("migration"))
	}),
)
