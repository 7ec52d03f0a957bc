// Package inventory turns dispense counts into consumable depletion for the machine a
// device is linked to.
package inventory

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"brewlink/internal/models"
	"brewlink/internal/payload"
)

// Recipe beverages fed by the reported count categories.
const (
	BeverageCoffee     = "coffee"
	BeverageCappuccino = "cappuccino"
	BeveragePowder     = "powder_drink"
)

var (
	ErrEmptyBody      = errors.New("empty body")
	ErrInvalidPayload = errors.New("invalid JSON payload")

	ErrDeviceNotLinked   = errors.New("device not linked to machine")
	ErrLoadMachine       = errors.New("load machine")
	ErrLoadRecipes       = errors.New("load recipes")
	ErrLoadConsumables   = errors.New("load consumables")
	ErrUpdateConsumables = errors.New("update consumables")
)

type Store interface {
	// WaterTankEnabled reports the machine flag; an unknown machine reads as false.
	WaterTankEnabled(ctx context.Context, machineID uint) (bool, error)
	// ListRecipes returns the recipe items of the given beverages.
	ListRecipes(ctx context.Context, beverages []string) ([]models.BeverageRecipeItem, error)
	// ListConsumables returns the machine's consumables ordered by id.
	ListConsumables(ctx context.Context, machineID uint) ([]models.MachineConsumable, error)
	// AdjustConsumable applies adj to the live current level of the consumable in one
	// atomic write.
	AdjustConsumable(ctx context.Context, consumableID uint, adj Adjustment) error
}

// Counts are the inventory-relevant dispense counts of one report.
type Counts struct {
	Coffee     float64
	Cappuccino float64
	Powders    float64
}

func (c Counts) Total() float64 {
	return c.Coffee + c.Cappuccino + c.Powders
}

func (c Counts) byBeverage() map[string]float64 {
	return map[string]float64{
		BeverageCoffee:     c.Coffee,
		BeverageCappuccino: c.Cappuccino,
		BeveragePowder:     c.Powders,
	}
}

// ParseCounts reads {"counts": {coffee, cappuccino, powders}} out of a report body.
func ParseCounts(body []byte) (Counts, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Counts{}, ErrEmptyBody
	}
	obj, err := payload.Parse(body)
	if err != nil {
		return Counts{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	c := obj.Object("counts")
	num := func(key string) float64 {
		v, _ := c.Number(key)
		return v
	}
	return Counts{
		Coffee:     num("coffee"),
		Cappuccino: num("cappuccino"),
		Powders:    num("powders"),
	}, nil
}

type Result struct {
	Applied  float64  `json:"applied"`
	Warnings []string `json:"warnings"`
}

type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Apply depletes (or refills, for positive deltas) the consumables of the machine.
// Recipes that cannot be applied produce warnings, not errors. Updates are written
// one consumable at a time; the first failing write aborts and earlier ones stay.
func (e *Engine) Apply(ctx context.Context, machineID *uint, counts Counts) (Result, error) {
	total := counts.Total()
	if total <= 0 {
		return Result{Applied: 0}, nil
	}
	if machineID == nil {
		return Result{}, ErrDeviceNotLinked
	}

	waterEnabled, err := e.store.WaterTankEnabled(ctx, *machineID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrLoadMachine, err)
	}

	perBeverage := counts.byBeverage()
	beverages := []string{BeverageCoffee, BeverageCappuccino, BeveragePowder}
	recipes, err := e.store.ListRecipes(ctx, beverages)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrLoadRecipes, err)
	}

	consumables, err := e.store.ListConsumables(ctx, *machineID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrLoadConsumables, err)
	}
	byType := make(map[string]models.MachineConsumable, len(consumables))
	for _, c := range consumables {
		byType[c.Type] = c
	}

	res := Result{Applied: total, Warnings: []string{}}
	adjustments := make(map[string]Adjustment)
	for _, r := range recipes {
		count, ok := perBeverage[r.Beverage]
		if !ok || count <= 0 {
			continue
		}
		if r.RequireWaterTank && !waterEnabled {
			res.Warnings = append(res.Warnings, fmt.Sprintf("skip %s:%s water_tank_disabled", r.Beverage, r.Consumable))
			continue
		}
		c, ok := byType[r.Consumable]
		if !ok {
			res.Warnings = append(res.Warnings, "missing consumable "+r.Consumable)
			continue
		}
		if c.CapacityUnits <= 0 {
			res.Warnings = append(res.Warnings, "invalid capacity "+r.Consumable)
			continue
		}
		adj, seen := adjustments[r.Consumable]
		if !seen {
			adj = Identity()
		}
		adjustments[r.Consumable] = adj.Step(r.DeltaUnits*count, c.CapacityUnits)
	}

	for _, c := range consumables {
		adj, ok := adjustments[c.Type]
		if !ok {
			continue
		}
		if err := e.store.AdjustConsumable(ctx, c.ID, adj); err != nil {
			return Result{}, fmt.Errorf("%w: %s: %w", ErrUpdateConsumables, c.Type, err)
		}
	}
	return res, nil
}
