package models

import "gorm.io/gorm"

// Machine is the logical dispensing configuration a device is linked to.
type Machine struct {
	gorm.Model
	Name             string `gorm:"size:128;uniqueIndex"`
	WaterTankEnabled bool   `gorm:"not null;default:false"`
}

// MachineConsumable is one stocked consumable of a machine.
// CurrentUnits stays within [0, CapacityUnits] after every update made by the gateway.
type MachineConsumable struct {
	gorm.Model
	MachineID     uint    `gorm:"not null;uniqueIndex:ux_consumable_machine_type,priority:1"`
	Type          string  `gorm:"size:64;not null;uniqueIndex:ux_consumable_machine_type,priority:2"`
	CapacityUnits float64 `gorm:"not null;default:0"`
	CurrentUnits  float64 `gorm:"not null;default:0"`
}

// BeverageRecipeItem maps one dispensed beverage to a consumable debit (or credit).
type BeverageRecipeItem struct {
	gorm.Model
	Beverage         string  `gorm:"size:64;not null;index"`
	Consumable       string  `gorm:"size:64;not null"`
	DeltaUnits       float64 `gorm:"not null"`
	RequireWaterTank bool    `gorm:"not null;default:false"`
}
