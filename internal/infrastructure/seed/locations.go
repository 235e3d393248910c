// Package seed loads the location registry from a YAML file
package seed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wms-platform/inventory-ledger/internal/domain"
)

// LocationFile is the seed file layout:
//
//	locations:
//	  - id: WH-A
//	    name: Main warehouse
//	  - id: WH-B
//	    name: Overflow
//	    active: false
type LocationFile struct {
	Locations []LocationEntry `yaml:"locations"`
}

// LocationEntry is one location. Active defaults to true.
type LocationEntry struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Active *bool  `yaml:"active"`
}

// LoadLocationsFile reads and parses a seed file
func LoadLocationsFile(path string) ([]*domain.Location, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open location seed: %w", err)
	}
	defer f.Close()
	return ParseLocations(f)
}

// ParseLocations parses a seed document. Ids must be present and unique.
func ParseLocations(r io.Reader) ([]*domain.Location, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read location seed: %w", err)
	}

	var file LocationFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse location seed: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Locations))
	locations := make([]*domain.Location, 0, len(file.Locations))
	for i, entry := range file.Locations {
		if entry.ID == "" {
			return nil, fmt.Errorf("location %d has no id", i)
		}
		if _, dup := seen[entry.ID]; dup {
			return nil, fmt.Errorf("location %s is listed twice", entry.ID)
		}
		seen[entry.ID] = struct{}{}

		name := entry.Name
		if name == "" {
			name = entry.ID
		}
		location := domain.NewLocation(entry.ID, name)
		if entry.Active != nil && !*entry.Active {
			location.SetActive(false)
		}
		locations = append(locations, location)
	}
	return locations, nil
}

// Apply saves each location through repo and returns how many were written
func Apply(ctx context.Context, repo domain.LocationRepository, locations []*domain.Location) (int, error) {
	for i, location := range locations {
		if err := repo.Save(ctx, location); err != nil {
			return i, fmt.Errorf("failed to save location %s: %w", location.ID, err)
		}
	}
	return len(locations), nil
}
