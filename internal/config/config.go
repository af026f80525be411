// Package config holds the engine configuration, loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Nav holds all navigation engine settings.
type Nav struct {
	// Enabled gates the whole engine; when false every pathing call is
	// a no-op.
	Enabled bool `yaml:"enabled"`

	// Debug draw flags, exposed for an external renderer.
	Draw           bool `yaml:"draw"`
	DrawDebugAreas bool `yaml:"draw_debug_areas"`

	// LogPathing enables diagnostic logs around each search.
	LogPathing bool `yaml:"log_pathing"`

	// StuckTime is how long without progress counts as stuck; jumping
	// kicks in at half of it.
	StuckTime time.Duration `yaml:"stuck_time"`

	// MeshDir is where mesh files live, resolved against the working
	// directory and keyed by level name.
	MeshDir string `yaml:"mesh_dir"`

	// PreferPlayerRoutes discounts route costs through areas other
	// players were seen in.
	PreferPlayerRoutes bool `yaml:"prefer_player_routes"`

	LogLevel string `yaml:"log_level"`
}

// DefaultNav returns Nav config with sensible defaults.
func DefaultNav() Nav {
	return Nav{
		Enabled:   true,
		StuckTime: time.Second,
		MeshDir:   "tf",
		LogLevel:  "info",
	}
}

// LoadNav loads nav config from a YAML file. A missing file yields the
// defaults.
func LoadNav(path string) (Nav, error) {
	cfg := DefaultNav()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
