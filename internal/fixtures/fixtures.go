// Package fixtures loads seed data (machines, consumables, devices, recipes) from YAML.
package fixtures

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Consumable struct {
	Type     string  `yaml:"type"`
	Capacity float64 `yaml:"capacity"`
	Current  float64 `yaml:"current"`
}

type Machine struct {
	Name             string       `yaml:"name"`
	WaterTankEnabled bool         `yaml:"water_tank_enabled"`
	Consumables      []Consumable `yaml:"consumables"`
}

type Device struct {
	Key        string `yaml:"key"`
	Secret     string `yaml:"secret"`
	NextSecret string `yaml:"next_secret"`
	Machine    string `yaml:"machine"`
}

type Recipe struct {
	Beverage         string  `yaml:"beverage"`
	Consumable       string  `yaml:"consumable"`
	Delta            float64 `yaml:"delta"`
	RequireWaterTank bool    `yaml:"require_water_tank"`
}

// Set is one fixtures document. Applying a Set is an upsert by natural key:
// machine name, (machine, consumable type), device key, (beverage, consumable).
type Set struct {
	Machines []Machine `yaml:"machines"`
	Devices  []Device  `yaml:"devices"`
	Recipes  []Recipe  `yaml:"recipes"`
}

func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Set) Validate() error {
	var errs []error
	machines := map[string]bool{}
	for i, m := range s.Machines {
		if strings.TrimSpace(m.Name) == "" {
			errs = append(errs, fmt.Errorf("machines[%d]: name is required", i))
			continue
		}
		if machines[m.Name] {
			errs = append(errs, fmt.Errorf("machines[%d]: duplicate name %q", i, m.Name))
		}
		machines[m.Name] = true
		for j, c := range m.Consumables {
			if c.Type == "" {
				errs = append(errs, fmt.Errorf("machines[%d].consumables[%d]: type is required", i, j))
			}
			if c.Current < 0 || (c.Capacity > 0 && c.Current > c.Capacity) {
				errs = append(errs, fmt.Errorf("machines[%d].consumables[%d]: current outside [0, capacity]", i, j))
			}
		}
	}
	for i, d := range s.Devices {
		if d.Key == "" || d.Secret == "" {
			errs = append(errs, fmt.Errorf("devices[%d]: key and secret are required", i))
		}
		if d.Machine != "" && !machines[d.Machine] {
			errs = append(errs, fmt.Errorf("devices[%d]: unknown machine %q", i, d.Machine))
		}
	}
	for i, r := range s.Recipes {
		if r.Beverage == "" || r.Consumable == "" {
			errs = append(errs, fmt.Errorf("recipes[%d]: beverage and consumable are required", i))
		}
	}
	return errors.Join(errs...)
}
