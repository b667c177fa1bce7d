package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingPathErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("Load() on missing file: want error, got nil")
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg != Defaults() {
		t.Errorf("Load(\"\") = %+v, want Defaults() = %+v", cfg, Defaults())
	}
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slice.toml")
	body := "strategy = \"octree\"\nmax_level = 6\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Strategy != "octree" || cfg.MaxLevel != 6 {
		t.Errorf("Load() = %+v, want strategy=octree max_level=6", cfg)
	}
	if cfg.TileSize != Defaults().TileSize {
		t.Errorf("TileSize = %v, want default %v (untouched by file)", cfg.TileSize, Defaults().TileSize)
	}
}

func TestOverlayAppliesOnlySetFields(t *testing.T) {
	base := Defaults()
	level := 9
	cfg := Overlay(base, Overrides{MaxLevel: &level})

	if cfg.MaxLevel != 9 {
		t.Errorf("MaxLevel = %d, want 9", cfg.MaxLevel)
	}
	if cfg.Strategy != base.Strategy {
		t.Errorf("Strategy = %q, want unchanged %q", cfg.Strategy, base.Strategy)
	}
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := Defaults()
	cfg.Strategy = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() with unknown strategy: want error, got nil")
	}
}

func TestValidateRejectsNonPositiveTileSize(t *testing.T) {
	cfg := Defaults()
	cfg.TileSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() with tile_size=0: want error, got nil")
	}
}
