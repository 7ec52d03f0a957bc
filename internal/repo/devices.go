package repo

import (
	"context"
	"errors"
	"time"

	"brewlink/internal/devauth"
	"brewlink/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeviceStore struct {
	db *gorm.DB
}

func NewDeviceStore(db *gorm.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

// LookupDevice: устройство по публичному ключу (x-device-id). Одно чтение, без записи.
func (s *DeviceStore) LookupDevice(ctx context.Context, deviceKey string) (devauth.Record, bool, error) {
	var m models.Device
	err := s.db.WithContext(ctx).Where("device_key = ?", deviceKey).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return devauth.Record{}, false, nil
	}
	if err != nil {
		return devauth.Record{}, false, err
	}
	return devauth.Record{
		ID:          m.ID,
		Key:         m.DeviceKey,
		Credentials: credentialsOf(&m),
		MachineID:   m.MachineID,
	}, true, nil
}

// UpdateCredentials читает секреты под блокировкой строки и записывает результат fn
// в той же транзакции, так что две ротации одного устройства не перетирают друг друга.
func (s *DeviceStore) UpdateCredentials(ctx context.Context, deviceKey string, fn func(devauth.Credentials) (devauth.Credentials, error)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Device
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("device_key = ?", deviceKey).First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return devauth.ErrDeviceNotFound
		}
		if err != nil {
			return err
		}

		c, err := fn(credentialsOf(&m))
		if err != nil {
			return err
		}
		var next *string
		if c.Next != "" {
			next = &c.Next
		}
		return tx.Model(&models.Device{}).Where("id = ?", m.ID).Updates(map[string]any{
			"device_secret":      c.Current,
			"device_secret_next": next,
			"updated_at":         time.Now(),
		}).Error
	})
}

func credentialsOf(m *models.Device) devauth.Credentials {
	c := devauth.Credentials{Current: m.DeviceSecret}
	if m.DeviceSecretNext != nil {
		c.Next = *m.DeviceSecretNext
	}
	return c
}
