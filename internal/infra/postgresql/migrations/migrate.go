package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/artpromedia/aivo-sub003/internal/ledger"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_delivery_requests",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&ledger.RequestModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_delivery_requests_state_created ON delivery_requests (state, created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_delivery_requests_user_id ON delivery_requests (user_id)`,
					`CREATE INDEX IF NOT EXISTS idx_delivery_requests_fanout_id ON delivery_requests (fanout_id) WHERE fanout_id IS NOT NULL`,
					`CREATE INDEX IF NOT EXISTS idx_delivery_requests_stalled ON delivery_requests (updated_at) WHERE state IN ('PENDING', 'ATTEMPT_REALTIME', 'ATTEMPT_PUSH', 'ATTEMPT_SMS')`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&ledger.RequestModel{})
			},
		},
		{
			ID: "000002_create_delivery_attempts",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&ledger.AttemptModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_delivery_attempts_request_id ON delivery_attempts (request_id)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&ledger.AttemptModel{})
			},
		},
		{
			ID: "000003_create_fanouts",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&ledger.FanoutModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&ledger.FanoutModel{})
			},
		},
	})

	return m.Migrate()
}
