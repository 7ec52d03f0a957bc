package inventory_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"brewlink/internal/inventory"
	"brewlink/internal/memstore"
)

type rig struct {
	store   *memstore.Store
	engine  *inventory.Engine
	machine uint
	beans   uint
	water   uint
	milk    uint
}

func newRig(t *testing.T, waterTank bool) *rig {
	t.Helper()
	st := memstore.New()
	m := st.AddMachine("lobby", waterTank)
	r := &rig{store: st, engine: inventory.NewEngine(st), machine: m.ID}
	r.beans = st.AddConsumable(m.ID, "beans", 1000, 500).ID
	r.water = st.AddConsumable(m.ID, "water", 2000, 2000).ID
	r.milk = st.AddConsumable(m.ID, "milk", 500, 100).ID
	st.AddRecipe("coffee", "beans", -18, false)
	st.AddRecipe("coffee", "water", -150, true)
	st.AddRecipe("cappuccino", "beans", -18, false)
	st.AddRecipe("cappuccino", "milk", -120, false)
	st.AddRecipe("tea", "water", -200, true)
	return r
}

func (r *rig) level(t *testing.T, id uint) float64 {
	t.Helper()
	c, ok := r.store.Consumable(id)
	if !ok {
		t.Fatalf("consumable %d missing", id)
	}
	return c.CurrentUnits
}

func TestApply_Depletes(t *testing.T) {
	r := newRig(t, true)
	res, err := r.engine.Apply(context.Background(), &r.machine, inventory.Counts{Coffee: 2, Cappuccino: 1})
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied != 3 || len(res.Warnings) != 0 {
		t.Fatalf("res = %+v", res)
	}
	if got := r.level(t, r.beans); got != 500-18*3 {
		t.Errorf("beans = %v", got)
	}
	if got := r.level(t, r.water); got != 2000-300 {
		t.Errorf("water = %v", got)
	}
	if got := r.level(t, r.milk); got != 0 {
		t.Errorf("milk = %v, want clamped to 0", got)
	}
}

func TestApply_ZeroTotalNeedsNoMachine(t *testing.T) {
	st := memstore.New()
	st.Fail("WaterTankEnabled", errors.New("must not be called"))
	e := inventory.NewEngine(st)
	for _, c := range []inventory.Counts{{}, {Coffee: -2, Powders: 1}} {
		res, err := e.Apply(context.Background(), nil, c)
		if err != nil || res.Applied != 0 {
			t.Fatalf("Apply(%+v) = %+v, %v", c, res, err)
		}
	}
}

func TestApply_NotLinked(t *testing.T) {
	e := inventory.NewEngine(memstore.New())
	if _, err := e.Apply(context.Background(), nil, inventory.Counts{Coffee: 1}); !errors.Is(err, inventory.ErrDeviceNotLinked) {
		t.Fatalf("err = %v", err)
	}
}

func TestApply_WaterTankDisabled(t *testing.T) {
	r := newRig(t, false)
	res, err := r.engine.Apply(context.Background(), &r.machine, inventory.Counts{Coffee: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"skip coffee:water water_tank_disabled"}
	if !reflect.DeepEqual(res.Warnings, want) {
		t.Fatalf("warnings = %q, want %q", res.Warnings, want)
	}
	if got := r.level(t, r.water); got != 2000 {
		t.Errorf("water = %v, want unchanged", got)
	}
	if got := r.level(t, r.beans); got != 482 {
		t.Errorf("beans = %v, want 482", got)
	}
}

func TestApply_UnknownMachineReadsAsNoWaterTank(t *testing.T) {
	r := newRig(t, true)
	ghost := r.machine + 1000
	res, err := r.engine.Apply(context.Background(), &ghost, inventory.Counts{Coffee: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"missing consumable beans", "skip coffee:water water_tank_disabled"}
	if !reflect.DeepEqual(res.Warnings, want) {
		t.Fatalf("warnings = %q, want %q", res.Warnings, want)
	}
}

func TestApply_MissingAndInvalidConsumables(t *testing.T) {
	st := memstore.New()
	m := st.AddMachine("m", true)
	st.AddConsumable(m.ID, "cocoa", 0, 0)
	st.AddRecipe("powder_drink", "cocoa", -10, false)
	st.AddRecipe("powder_drink", "cups", -1, false)

	res, err := inventory.NewEngine(st).Apply(context.Background(), &m.ID, inventory.Counts{Powders: 2})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"invalid capacity cocoa", "missing consumable cups"}
	if !reflect.DeepEqual(res.Warnings, want) || res.Applied != 2 {
		t.Fatalf("res = %+v, want warnings %q", res, want)
	}
}

func TestApply_LoadFailures(t *testing.T) {
	tests := []struct {
		method string
		want   error
	}{
		{"WaterTankEnabled", inventory.ErrLoadMachine},
		{"ListRecipes", inventory.ErrLoadRecipes},
		{"ListConsumables", inventory.ErrLoadConsumables},
		{"AdjustConsumable", inventory.ErrUpdateConsumables},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			r := newRig(t, true)
			r.store.Fail(tt.method, errors.New("boom"))
			if _, err := r.engine.Apply(context.Background(), &r.machine, inventory.Counts{Coffee: 1}); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if got := r.level(t, r.beans); got != 500 {
				t.Errorf("beans = %v, want untouched", got)
			}
		})
	}
}

// Concurrent reports must not lose each other's depletion.
func TestApply_ConcurrentReports(t *testing.T) {
	r := newRig(t, true)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.engine.Apply(context.Background(), &r.machine, inventory.Counts{Coffee: 1}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if got := r.level(t, r.beans); got != 500-18*20 {
		t.Fatalf("beans = %v, want %v", got, 500-18*20)
	}
}

func TestParseCounts(t *testing.T) {
	c, err := inventory.ParseCounts([]byte(`{"counts":{"coffee":"2","cappuccino":1.5,"powders":"x","idle":9}}`))
	if err != nil {
		t.Fatal(err)
	}
	if c != (inventory.Counts{Coffee: 2, Cappuccino: 1.5}) {
		t.Fatalf("counts = %+v", c)
	}
	if _, err := inventory.ParseCounts(nil); !errors.Is(err, inventory.ErrEmptyBody) {
		t.Errorf("empty: %v", err)
	}
	if _, err := inventory.ParseCounts([]byte(`nope`)); !errors.Is(err, inventory.ErrInvalidPayload) {
		t.Errorf("malformed: %v", err)
	}
}
