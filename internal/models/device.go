package models

import (
	"time"

	"gorm.io/gorm"
)

// Device is a dispensing unit talking to the gateway. DeviceKey is the public id sent in
// x-device-id, the secrets sign every request.
type Device struct {
	gorm.Model
	DeviceKey        string  `gorm:"column:device_key;size:128;uniqueIndex;not null"`
	DeviceSecret     string  `gorm:"column:device_secret;size:255;not null"`
	DeviceSecretNext *string `gorm:"column:device_secret_next;size:255"`
	MachineID        *uint   `gorm:"index"`
}

// DeviceStatus holds the last known liveness of a device (one row per device, no history).
type DeviceStatus struct {
	DeviceID   uint `gorm:"primaryKey;autoIncrement:false"`
	LastSeenAt time.Time
	FWVersion  *string `gorm:"column:fw_version;size:64"`
	UpdatedAt  time.Time
}

func (DeviceStatus) TableName() string { return "device_status" }

// DeviceCounterBucket: per-category event counts of one device in one receipt-time window.
type DeviceCounterBucket struct {
	ID              uint      `gorm:"primaryKey"`
	DeviceID        uint      `gorm:"not null;uniqueIndex:ux_counters_device_bucket,priority:1"`
	TSBucket        time.Time `gorm:"column:ts_bucket;not null;uniqueIndex:ux_counters_device_bucket,priority:2"`
	IntervalS       int64     `gorm:"column:interval_s;not null"`
	IdleCount       int64
	CoffeeCount     int64
	CappuccinoCount int64
	PowdersCount    int64
	UnknownCount    int64
	UpdatedAt       time.Time
}

func (DeviceCounterBucket) TableName() string { return "device_counters_bucket" }
