// Package config holds the explicit pipeline configuration: every input
// path, output path and numeric parameter has a named field so the pipeline
// can run against substitutes in tests without filesystem assumptions.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WGS84Proj4 is the geographic CRS every vector layer is normalized to.
const WGS84Proj4 = "+proj=longlat +datum=WGS84 +no_defs"

// VectorInput describes a single vector source file.
type VectorInput struct {
	Path string `yaml:"path"`

	// Proj4 is the source CRS. Empty means the file is already in
	// WGS84 lon/lat, the GeoJSON default.
	Proj4 string `yaml:"proj4,omitempty"`
}

// WardsInput describes the ward boundary layer and its attribute fields.
type WardsInput struct {
	Path      string `yaml:"path"`
	Proj4     string `yaml:"proj4,omitempty"`
	IDField   string `yaml:"id_field,omitempty"`
	NameField string `yaml:"name_field,omitempty"`
}

// TreesInput describes the tree census layers. Files listed under Paths that
// do not exist are skipped; files that fail to parse are reported but not
// fatal.
type TreesInput struct {
	Paths []string `yaml:"paths"`

	// TypeFields are tried in order to find the species label of a
	// feature; the first non-empty trimmed value wins.
	TypeFields []string `yaml:"type_fields,omitempty"`
	Proj4      string   `yaml:"proj4,omitempty"`
}

// Config is the root pipeline configuration.
type Config struct {
	ProcessedDir string      `yaml:"processed_dir"`
	Wards        WardsInput  `yaml:"wards"`
	Schools      VectorInput `yaml:"schools"`
	Trees        TreesInput  `yaml:"trees"`
	DEM          string      `yaml:"dem"`

	// SimplifyTolerance is the ward geometry simplification tolerance in
	// degrees. 0.0001 is roughly 11 m.
	SimplifyTolerance float64 `yaml:"simplify_tolerance,omitempty"`

	// Workers bounds the per-ward zonal statistics parallelism.
	// Zero means one worker per CPU.
	Workers int `yaml:"workers,omitempty"`
}

// Default returns the configuration matching the stock BBMP survey layout.
func Default() *Config {
	return &Config{
		ProcessedDir: "data/processed",
		Wards: WardsInput{
			Path:      "data/raw/BBMP.geojson",
			IDField:   "KGISWardNo",
			NameField: "KGISWardName",
		},
		Schools: VectorInput{Path: "data/raw/schools_osm.geojson"},
		Trees: TreesInput{
			Paths: []string{
				"data/raw/blr_east_zone_trees_11_2024.geojson",
				"data/raw/blr_south_zone_trees_11_2024.geojson",
				"data/raw/blr_west_zone_trees_11_2024.geojson",
			},
			TypeFields: []string{"TreeName", "tree_type"},
		},
		DEM:               "data/raw/dem_merged.tif",
		SimplifyTolerance: 0.0001,
	}
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// Validate checks that every required input and parameter is set.
func (c *Config) Validate() error {
	if c.ProcessedDir == "" {
		return fmt.Errorf("config: processed_dir is required")
	}
	if c.Wards.Path == "" {
		return fmt.Errorf("config: wards.path is required")
	}
	if c.Schools.Path == "" {
		return fmt.Errorf("config: schools.path is required")
	}
	if len(c.Trees.Paths) == 0 {
		return fmt.Errorf("config: trees.paths must list at least one file")
	}
	if c.DEM == "" {
		return fmt.Errorf("config: dem is required")
	}
	if c.SimplifyTolerance <= 0 {
		return fmt.Errorf("config: simplify_tolerance must be positive")
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative")
	}
	return nil
}
