package repo

import (
	"context"
	"errors"
	"math"

	"brewlink/internal/inventory"
	"brewlink/internal/models"

	"gorm.io/gorm"
)

type InventoryStore struct {
	db *gorm.DB
}

func NewInventoryStore(db *gorm.DB) *InventoryStore {
	return &InventoryStore{db: db}
}

// WaterTankEnabled: нет строки машины, значит бака нет.
func (s *InventoryStore) WaterTankEnabled(ctx context.Context, machineID uint) (bool, error) {
	var m models.Machine
	err := s.db.WithContext(ctx).Select("id", "water_tank_enabled").First(&m, machineID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.WaterTankEnabled, nil
}

func (s *InventoryStore) ListRecipes(ctx context.Context, beverages []string) ([]models.BeverageRecipeItem, error) {
	var items []models.BeverageRecipeItem
	err := s.db.WithContext(ctx).
		Where("beverage IN ?", beverages).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (s *InventoryStore) ListConsumables(ctx context.Context, machineID uint) ([]models.MachineConsumable, error) {
	var items []models.MachineConsumable
	err := s.db.WithContext(ctx).
		Where("machine_id = ?", machineID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// boundedSQL = min(max(current_units + offset, low), high), low <= high.
const boundedSQL = "CASE WHEN current_units + ? < ? THEN ? WHEN current_units + ? > ? THEN ? ELSE current_units + ? END"

// AdjustConsumable применяет сдвиг одной командой UPDATE к живому значению строки,
// без read-modify-write, поэтому параллельные отчёты не теряют списания.
// RowsAffected не проверяем: MySQL считает только реально изменённые строки.
func (s *InventoryStore) AdjustConsumable(ctx context.Context, consumableID uint, adj inventory.Adjustment) error {
	if !adj.Bounded() || math.IsNaN(adj.Offset) {
		return errors.New("adjustment has no capacity bounds")
	}
	expr := gorm.Expr(boundedSQL,
		adj.Offset, adj.Low, adj.Low,
		adj.Offset, adj.High, adj.High,
		adj.Offset,
	)
	return s.db.WithContext(ctx).Model(&models.MachineConsumable{}).
		Where("id = ?", consumableID).
		Update("current_units", expr).Error
}
