package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Point is a normalized (x, y) image coordinate in [0,1].
type Point [2]float64

// Zone is a named polygon watched by the vision service.
type Zone struct {
	ID      string  `json:"id"`
	Polygon []Point `json:"polygon"`
}

// ZoneConfig is the zone file consumed by the vision service.
type ZoneConfig struct {
	Zones []Zone `json:"zones"`
}

// IDs returns zone ids in file order.
func (c *ZoneConfig) IDs() []string {
	ids := make([]string, 0, len(c.Zones))
	for _, z := range c.Zones {
		ids = append(ids, z.ID)
	}
	return ids
}

// Validate checks zone ids are unique and polygons are closed shapes inside the frame.
func (c *ZoneConfig) Validate() error {
	if len(c.Zones) == 0 {
		return errors.New("no zones defined")
	}
	var errs []error
	seen := make(map[string]bool, len(c.Zones))
	for i, z := range c.Zones {
		if z.ID == "" {
			errs = append(errs, fmt.Errorf("zones[%d]: id is required", i))
			continue
		}
		if seen[z.ID] {
			errs = append(errs, fmt.Errorf("zones[%d]: duplicate id %q", i, z.ID))
		}
		seen[z.ID] = true
		if len(z.Polygon) < 3 {
			errs = append(errs, fmt.Errorf("zone %q: polygon needs at least 3 points, got %d", z.ID, len(z.Polygon)))
		}
		for j, p := range z.Polygon {
			if p[0] < 0 || p[0] > 1 || p[1] < 0 || p[1] > 1 {
				errs = append(errs, fmt.Errorf("zone %q: point %d (%g, %g) outside normalized range 0..1", z.ID, j, p[0], p[1]))
			}
		}
	}
	return errors.Join(errs...)
}

// ParseZones decodes and validates a zone file body.
func ParseZones(data []byte) (*ZoneConfig, error) {
	var cfg ZoneConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse zones: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadZones reads and validates the zone file at path.
func LoadZones(path string) (*ZoneConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zones file: %w", err)
	}
	cfg, err := ParseZones(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
