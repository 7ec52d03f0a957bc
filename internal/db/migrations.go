// internal/db/migrations.go
package db

import (
	"fmt"

	"brewlink/internal/models"

	"gorm.io/gorm"
)

// Migrate создаёт/обновляет схему всех таблиц и диалектные индексы.
func Migrate(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	if err := db.AutoMigrate(
		&models.Machine{},
		&models.MachineConsumable{},
		&models.BeverageRecipeItem{},
		&models.Device{},
		&models.DeviceStatus{},
		&models.DeviceCounterBucket{},
		&models.DeviceCommand{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return MigratePendingIndex(db)
}

// MigratePendingIndex: индекс под выборку очереди (pending, по порядку создания).
// Postgres и SQLite умеют частичные индексы, MySQL обходится составным из тегов модели.
func MigratePendingIndex(db *gorm.DB) error {
	dialect := db.Dialector.Name()

	switch dialect {
	case "postgres":
		return db.Exec(`CREATE INDEX IF NOT EXISTS idx_commands_pending ON "device_commands" ("device_id", "created_at", "id") WHERE "status" = 'pending'`).Error

	case "sqlite":
		return db.Exec(`CREATE INDEX IF NOT EXISTS idx_commands_pending ON device_commands (device_id, created_at, id) WHERE status = 'pending'`).Error

	case "mysql":
		return nil

	default:
		return fmt.Errorf("unsupported dialect: %s", dialect)
	}
}
