// Package config loads slicing configuration from a TOML file and layers
// CLI flag overrides on top, following the same toml.DecodeFile pattern
// NoiseTorch uses for its settings file.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds every tunable of a slicing run. A Parallel of 0 means one
// worker per CPU; MaxLevel 0 is an ordinary level. Overlay tells an unset
// flag from an explicit zero by the nil pointers of Overrides.
type Config struct {
	Output      string  `toml:"output"`
	Strategy    string  `toml:"strategy"`
	MaxLevel    int     `toml:"max_level"`
	TileSize    float64 `toml:"tile_size"`
	Format      string  `toml:"format"`
	Parallel    int     `toml:"parallel"`
	Incremental bool    `toml:"incremental"`
	Texture     bool    `toml:"texture"`
	BaseGeometricError float64 `toml:"base_geometric_error"`
}

// Defaults returns the configuration used when no config file and no
// overriding flags are supplied.
func Defaults() Config {
	return Config{
		Output:             "./tileset",
		Strategy:           "grid",
		MaxLevel:           4,
		TileSize:           100,
		Format:             "b3dm",
		Parallel:           0, // 0 means "use runtime.NumCPU()", resolved by the caller
		Incremental:        false,
		Texture:            false,
		BaseGeometricError: 1,
	}
}

// Load reads a TOML config file from path, starting from Defaults() so any
// field the file omits keeps its default value.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: file %s does not exist", path)
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Overrides carries CLI-flag values; a field's zero value means "flag not
// passed, keep whatever Config already has." Overlay applies each set
// field onto base and returns the merged result.
type Overrides struct {
	Output      *string
	Strategy    *string
	MaxLevel    *int
	TileSize    *float64
	Format      *string
	Parallel    *int
	Incremental *bool
	Texture     *bool
}

// Overlay merges o onto base, CLI flags winning over whatever the config
// file (or Defaults) set.
func Overlay(base Config, o Overrides) Config {
	out := base
	if o.Output != nil {
		out.Output = *o.Output
	}
	if o.Strategy != nil {
		out.Strategy = *o.Strategy
	}
	if o.MaxLevel != nil {
		out.MaxLevel = *o.MaxLevel
	}
	if o.TileSize != nil {
		out.TileSize = *o.TileSize
	}
	if o.Format != nil {
		out.Format = *o.Format
	}
	if o.Parallel != nil {
		out.Parallel = *o.Parallel
	}
	if o.Incremental != nil {
		out.Incremental = *o.Incremental
	}
	if o.Texture != nil {
		out.Texture = *o.Texture
	}
	return out
}

// Validate rejects configurations the pipeline cannot act on.
func (c Config) Validate() error {
	if c.Output == "" {
		return fmt.Errorf("config: output path must not be empty")
	}
	switch c.Strategy {
	case "grid", "octree", "kd", "adaptive":
	default:
		return fmt.Errorf("config: unknown strategy %q", c.Strategy)
	}
	if c.MaxLevel < 0 {
		return fmt.Errorf("config: max_level must be >= 0, got %d", c.MaxLevel)
	}
	if c.TileSize <= 0 {
		return fmt.Errorf("config: tile_size must be > 0, got %v", c.TileSize)
	}
	switch c.Format {
	case "b3dm", "i3dm", "pnts", "cmpt", "gltf":
	default:
		return fmt.Errorf("config: unknown format %q", c.Format)
	}
	return nil
}
