package repo

import (
	"context"
	"fmt"

	"brewlink/internal/fixtures"
	"brewlink/internal/models"

	"gorm.io/gorm"
)

// Seed применяет набор фикстур одной транзакцией. Повторный прогон того же файла
// ничего не дублирует: всё ищется по естественному ключу и обновляется.
func Seed(ctx context.Context, db *gorm.DB, set *fixtures.Set) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		machineIDs := make(map[string]uint, len(set.Machines))

		// 1) машины и их расходники
		for _, fm := range set.Machines {
			var m models.Machine
			if err := tx.Where(models.Machine{Name: fm.Name}).FirstOrCreate(&m).Error; err != nil {
				return fmt.Errorf("machine %s: %w", fm.Name, err)
			}
			if err := tx.Model(&m).Update("water_tank_enabled", fm.WaterTankEnabled).Error; err != nil {
				return fmt.Errorf("machine %s: %w", fm.Name, err)
			}
			machineIDs[fm.Name] = m.ID

			for _, fc := range fm.Consumables {
				var c models.MachineConsumable
				err := tx.Where(models.MachineConsumable{MachineID: m.ID, Type: fc.Type}).FirstOrCreate(&c).Error
				if err != nil {
					return fmt.Errorf("consumable %s/%s: %w", fm.Name, fc.Type, err)
				}
				err = tx.Model(&c).Updates(map[string]any{
					"capacity_units": fc.Capacity,
					"current_units":  fc.Current,
				}).Error
				if err != nil {
					return fmt.Errorf("consumable %s/%s: %w", fm.Name, fc.Type, err)
				}
			}
		}

		// 2) устройства
		for _, fd := range set.Devices {
			var machineID *uint
			if fd.Machine != "" {
				id, ok := machineIDs[fd.Machine]
				if !ok {
					return fmt.Errorf("device %s: unknown machine %s", fd.Key, fd.Machine)
				}
				machineID = &id
			}
			var next *string
			if fd.NextSecret != "" {
				next = &fd.NextSecret
			}
			var d models.Device
			err := tx.Where(models.Device{DeviceKey: fd.Key}).
				Attrs(models.Device{DeviceSecret: fd.Secret}).
				FirstOrCreate(&d).Error
			if err != nil {
				return fmt.Errorf("device %s: %w", fd.Key, err)
			}
			err = tx.Model(&d).Updates(map[string]any{
				"device_secret":      fd.Secret,
				"device_secret_next": next,
				"machine_id":         machineID,
			}).Error
			if err != nil {
				return fmt.Errorf("device %s: %w", fd.Key, err)
			}
		}

		// 3) рецепты
		for _, fr := range set.Recipes {
			var r models.BeverageRecipeItem
			err := tx.Where(models.BeverageRecipeItem{Beverage: fr.Beverage, Consumable: fr.Consumable}).
				Attrs(models.BeverageRecipeItem{DeltaUnits: fr.Delta}).
				FirstOrCreate(&r).Error
			if err != nil {
				return fmt.Errorf("recipe %s/%s: %w", fr.Beverage, fr.Consumable, err)
			}
			err = tx.Model(&r).Updates(map[string]any{
				"delta_units":        fr.Delta,
				"require_water_tank": fr.RequireWaterTank,
			}).Error
			if err != nil {
				return fmt.Errorf("recipe %s/%s: %w", fr.Beverage, fr.Consumable, err)
			}
		}
		return nil
	})
}
