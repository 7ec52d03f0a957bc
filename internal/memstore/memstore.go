// Package memstore keeps every brewlink table in memory behind one mutex. The server
// uses it when no database is configured; tests use it as the store of record.
package memstore

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"brewlink/internal/devauth"
	"brewlink/internal/fixtures"
	"brewlink/internal/inventory"
	"brewlink/internal/models"
)

type Store struct {
	mu sync.RWMutex

	seq         uint
	devices     map[uint]*models.Device
	byKey       map[string]uint
	status      map[uint]models.DeviceStatus
	counters    map[counterKey]models.DeviceCounterBucket
	commands    []*models.DeviceCommand
	machines    map[uint]*models.Machine
	consumables map[uint]*models.MachineConsumable
	recipes     []*models.BeverageRecipeItem

	failures map[string]error
}

type counterKey struct {
	device uint
	bucket int64
}

func New() *Store {
	return &Store{
		devices:     make(map[uint]*models.Device),
		byKey:       make(map[string]uint),
		status:      make(map[uint]models.DeviceStatus),
		counters:    make(map[counterKey]models.DeviceCounterBucket),
		machines:    make(map[uint]*models.Machine),
		consumables: make(map[uint]*models.MachineConsumable),
		failures:    make(map[string]error),
	}
}

// Fail makes every later call of the named method return err. A nil err clears it.
func (s *Store) Fail(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *Store) next() uint {
	s.seq++
	return s.seq
}

// ---- devices ----

func (s *Store) AddDevice(key, secret string, machineID *uint) *models.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putDevice(key, secret, "", machineID)
}

func (s *Store) putDevice(key, secret, next string, machineID *uint) *models.Device {
	d, ok := s.devices[s.byKey[key]]
	if !ok {
		d = &models.Device{DeviceKey: key}
		d.ID = s.next()
		d.CreatedAt = time.Now()
		s.devices[d.ID] = d
		s.byKey[key] = d.ID
	}
	d.DeviceSecret = secret
	d.DeviceSecretNext = nil
	if next != "" {
		d.DeviceSecretNext = &next
	}
	d.MachineID = machineID
	d.UpdatedAt = time.Now()
	return d
}

func (s *Store) LookupDevice(_ context.Context, deviceKey string) (devauth.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failures["LookupDevice"]; err != nil {
		return devauth.Record{}, false, err
	}
	id, ok := s.byKey[deviceKey]
	if !ok {
		return devauth.Record{}, false, nil
	}
	d := s.devices[id]
	return devauth.Record{
		ID:          d.ID,
		Key:         d.DeviceKey,
		Credentials: credentialsOf(d),
		MachineID:   d.MachineID,
	}, true, nil
}

func (s *Store) UpdateCredentials(_ context.Context, deviceKey string, fn func(devauth.Credentials) (devauth.Credentials, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[deviceKey]
	if !ok {
		return devauth.ErrDeviceNotFound
	}
	d := s.devices[id]
	c, err := fn(credentialsOf(d))
	if err != nil {
		return err
	}
	d.DeviceSecret = c.Current
	d.DeviceSecretNext = nil
	if c.Next != "" {
		next := c.Next
		d.DeviceSecretNext = &next
	}
	d.UpdatedAt = time.Now()
	return nil
}

func credentialsOf(d *models.Device) devauth.Credentials {
	c := devauth.Credentials{Current: d.DeviceSecret}
	if d.DeviceSecretNext != nil {
		c.Next = *d.DeviceSecretNext
	}
	return c
}

// ---- commands ----

func (s *Store) OldestPending(_ context.Context, deviceID uint) (*models.DeviceCommand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failures["OldestPending"]; err != nil {
		return nil, err
	}
	var oldest *models.DeviceCommand
	for _, c := range s.commands {
		if c.DeviceID != deviceID || c.Status != models.CommandPending {
			continue
		}
		if oldest == nil || c.CreatedAt.Before(oldest.CreatedAt) ||
			(c.CreatedAt.Equal(oldest.CreatedAt) && c.ID < oldest.ID) {
			oldest = c
		}
	}
	if oldest == nil {
		return nil, nil
	}
	cp := *oldest
	return &cp, nil
}

func (s *Store) MarkSent(_ context.Context, commandID uint, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["MarkSent"]; err != nil {
		return false, err
	}
	for _, c := range s.commands {
		if c.ID == commandID && c.Status == models.CommandPending {
			c.Status = models.CommandSent
			c.SentAt = &at
			c.UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) Acknowledge(_ context.Context, deviceID uint, commandUUID, status string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["Acknowledge"]; err != nil {
		return false, err
	}
	for _, c := range s.commands {
		if c.UUID == commandUUID && c.DeviceID == deviceID {
			c.Status = status
			c.AckAt = &at
			c.UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) Enqueue(_ context.Context, cmd *models.DeviceCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["Enqueue"]; err != nil {
		return err
	}
	if _, ok := s.devices[cmd.DeviceID]; !ok {
		return errors.New("unknown device")
	}
	cmd.ID = s.next()
	cp := *cmd
	s.commands = append(s.commands, &cp)
	return nil
}

// Commands returns copies of the device's commands in insertion order.
func (s *Store) Commands(deviceID uint) []models.DeviceCommand {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.DeviceCommand
	for _, c := range s.commands {
		if c.DeviceID == deviceID {
			out = append(out, *c)
		}
	}
	return out
}

// ---- telemetry ----

func (s *Store) UpsertCounters(_ context.Context, b *models.DeviceCounterBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["UpsertCounters"]; err != nil {
		return err
	}
	k := counterKey{device: b.DeviceID, bucket: b.TSBucket.Unix()}
	row := *b
	if ex, ok := s.counters[k]; ok {
		row.ID = ex.ID
	} else {
		row.ID = s.next()
	}
	row.UpdatedAt = time.Now()
	s.counters[k] = row
	return nil
}

func (s *Store) UpsertStatus(_ context.Context, st *models.DeviceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["UpsertStatus"]; err != nil {
		return err
	}
	row := *st
	row.UpdatedAt = time.Now()
	s.status[st.DeviceID] = row
	return nil
}

func (s *Store) Counters(deviceID uint, bucket time.Time) (models.DeviceCounterBucket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.counters[counterKey{device: deviceID, bucket: bucket.Unix()}]
	return b, ok
}

func (s *Store) Status(deviceID uint) (models.DeviceStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.status[deviceID]
	return st, ok
}

// ---- inventory ----

func (s *Store) AddMachine(name string, waterTank bool) *models.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putMachine(name, waterTank)
}

func (s *Store) putMachine(name string, waterTank bool) *models.Machine {
	for _, m := range s.machines {
		if m.Name == name {
			m.WaterTankEnabled = waterTank
			return m
		}
	}
	m := &models.Machine{Name: name, WaterTankEnabled: waterTank}
	m.ID = s.next()
	s.machines[m.ID] = m
	return m
}

func (s *Store) AddConsumable(machineID uint, typ string, capacity, current float64) *models.MachineConsumable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putConsumable(machineID, typ, capacity, current)
}

func (s *Store) putConsumable(machineID uint, typ string, capacity, current float64) *models.MachineConsumable {
	for _, c := range s.consumables {
		if c.MachineID == machineID && c.Type == typ {
			c.CapacityUnits, c.CurrentUnits = capacity, current
			return c
		}
	}
	c := &models.MachineConsumable{MachineID: machineID, Type: typ, CapacityUnits: capacity, CurrentUnits: current}
	c.ID = s.next()
	s.consumables[c.ID] = c
	return c
}

func (s *Store) AddRecipe(beverage, consumable string, delta float64, requireWaterTank bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putRecipe(beverage, consumable, delta, requireWaterTank)
}

func (s *Store) putRecipe(beverage, consumable string, delta float64, requireWaterTank bool) {
	for _, r := range s.recipes {
		if r.Beverage == beverage && r.Consumable == consumable {
			r.DeltaUnits, r.RequireWaterTank = delta, requireWaterTank
			return
		}
	}
	r := &models.BeverageRecipeItem{Beverage: beverage, Consumable: consumable, DeltaUnits: delta, RequireWaterTank: requireWaterTank}
	r.ID = s.next()
	s.recipes = append(s.recipes, r)
}

// Consumable returns the current level of a consumable.
func (s *Store) Consumable(id uint) (models.MachineConsumable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consumables[id]
	if !ok {
		return models.MachineConsumable{}, false
	}
	return *c, true
}

func (s *Store) WaterTankEnabled(_ context.Context, machineID uint) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failures["WaterTankEnabled"]; err != nil {
		return false, err
	}
	m, ok := s.machines[machineID]
	return ok && m.WaterTankEnabled, nil
}

func (s *Store) ListRecipes(_ context.Context, beverages []string) ([]models.BeverageRecipeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failures["ListRecipes"]; err != nil {
		return nil, err
	}
	var out []models.BeverageRecipeItem
	for _, r := range s.recipes {
		if slices.Contains(beverages, r.Beverage) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *Store) ListConsumables(_ context.Context, machineID uint) ([]models.MachineConsumable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failures["ListConsumables"]; err != nil {
		return nil, err
	}
	var out []models.MachineConsumable
	for _, c := range s.consumables {
		if c.MachineID == machineID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AdjustConsumable(_ context.Context, consumableID uint, adj inventory.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["AdjustConsumable"]; err != nil {
		return err
	}
	c, ok := s.consumables[consumableID]
	if !ok {
		return errors.New("consumable not found")
	}
	c.CurrentUnits = adj.Apply(c.CurrentUnits)
	c.UpdatedAt = time.Now()
	return nil
}

// ---- fixtures ----

// Seed applies a fixtures set.
func (s *Store) Seed(_ context.Context, set *fixtures.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]uint, len(set.Machines))
	for _, fm := range set.Machines {
		m := s.putMachine(fm.Name, fm.WaterTankEnabled)
		ids[fm.Name] = m.ID
		for _, fc := range fm.Consumables {
			s.putConsumable(m.ID, fc.Type, fc.Capacity, fc.Current)
		}
	}
	for _, fd := range set.Devices {
		var machineID *uint
		if fd.Machine != "" {
			id, ok := ids[fd.Machine]
			if !ok {
				return errors.New("unknown machine " + fd.Machine)
			}
			machineID = &id
		}
		s.putDevice(fd.Key, fd.Secret, fd.NextSecret, machineID)
	}
	for _, fr := range set.Recipes {
		s.putRecipe(fr.Beverage, fr.Consumable, fr.Delta, fr.RequireWaterTank)
	}
	return nil
}
