package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	CommandPending = "pending"
	CommandSent    = "sent"
)

// DeviceCommand: a remote command addressed to one device.
// ID keeps insertion order for the queue, UUID is what the device sees.
type DeviceCommand struct {
	ID        uint           `gorm:"primaryKey"`
	UUID      string         `gorm:"type:char(36);uniqueIndex;not null"`
	DeviceID  uint           `gorm:"not null;index:idx_commands_queue,priority:1"`
	Status    string         `gorm:"size:64;not null;default:'pending';index:idx_commands_queue,priority:2"`
	Command   string         `gorm:"size:128;not null"`
	Payload   datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time      `gorm:"index:idx_commands_queue,priority:3"`
	SentAt    *time.Time
	AckAt     *time.Time
	UpdatedAt time.Time
}
