package repo

import (
	"context"
	"time"

	"brewlink/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TelemetryStore struct {
	db *gorm.DB
}

func NewTelemetryStore(db *gorm.DB) *TelemetryStore {
	return &TelemetryStore{db: db}
}

// UpsertCounters заменяет (не суммирует) счётчики в корзине (device_id, ts_bucket).
func (s *TelemetryStore) UpsertCounters(ctx context.Context, b *models.DeviceCounterBucket) error {
	b.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}, {Name: "ts_bucket"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"interval_s", "idle_count", "coffee_count", "cappuccino_count",
			"powders_count", "unknown_count", "updated_at",
		}),
	}).Create(b).Error
}

func (s *TelemetryStore) UpsertStatus(ctx context.Context, st *models.DeviceStatus) error {
	st.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_at", "fw_version", "updated_at"}),
	}).Create(st).Error
}

// Counters читает корзину; для тестов и brewctl.
func (s *TelemetryStore) Counters(ctx context.Context, deviceID uint, bucket time.Time) (*models.DeviceCounterBucket, error) {
	var b models.DeviceCounterBucket
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND ts_bucket = ?", deviceID, bucket).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}
