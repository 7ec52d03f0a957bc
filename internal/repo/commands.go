package repo

import (
	"context"
	"time"

	"brewlink/internal/models"

	"gorm.io/gorm"
)

type CommandStore struct {
	db *gorm.DB
}

func NewCommandStore(db *gorm.DB) *CommandStore {
	return &CommandStore{db: db}
}

func (s *CommandStore) OldestPending(ctx context.Context, deviceID uint) (*models.DeviceCommand, error) {
	var c models.DeviceCommand
	res := s.db.WithContext(ctx).
		Where("device_id = ? AND status = ?", deviceID, models.CommandPending).
		Order("created_at ASC, id ASC").
		Limit(1).
		Find(&c)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &c, nil
}

// MarkSent: условный UPDATE: выигрывает только тот poll, который застал статус pending.
func (s *CommandStore) MarkSent(ctx context.Context, commandID uint, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.DeviceCommand{}).
		Where("id = ? AND status = ?", commandID, models.CommandPending).
		Updates(map[string]any{
			"status":     models.CommandSent,
			"sent_at":    at,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Acknowledge фильтрует по uuid И device_id: чужую команду подтвердить нельзя.
func (s *CommandStore) Acknowledge(ctx context.Context, deviceID uint, commandUUID, status string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.DeviceCommand{}).
		Where("uuid = ? AND device_id = ?", commandUUID, deviceID).
		Updates(map[string]any{
			"status":     status,
			"ack_at":     at,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *CommandStore) Enqueue(ctx context.Context, cmd *models.DeviceCommand) error {
	return s.db.WithContext(ctx).Create(cmd).Error
}
