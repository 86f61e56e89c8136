package pipeline

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/civickit/wardatlas/internal/config"
	"github.com/civickit/wardatlas/internal/geo"
)

// TreePoint is a surveyed tree with a normalized species label, in WGS84.
type TreePoint struct {
	X, Y  float64
	Type  string
	Props map[string]interface{}
}

// SchoolPoint is a school location in WGS84.
type SchoolPoint struct {
	X, Y  float64
	Props map[string]interface{}
}

// FileOutcome records the result of loading one tree census file, making
// partial failure an observable value instead of a printed side effect.
type FileOutcome struct {
	Path    string
	Loaded  int
	Missing bool
	Err     error
}

// OK reports whether the file contributed features.
func (o FileOutcome) OK() bool { return !o.Missing && o.Err == nil }

// LoadTrees reads every configured tree census file. Missing files are
// skipped, unparsable files are recorded as failed outcomes, and the rest
// are concatenated in list order. Loading fails only when no file loaded.
func LoadTrees(in config.TreesInput) ([]TreePoint, []FileOutcome, error) {
	transform, err := layerTransform(in.Proj4)
	if err != nil {
		return nil, nil, &LoadError{Layer: "trees", Path: strings.Join(in.Paths, ","), Err: err}
	}

	var trees []TreePoint
	outcomes := make([]FileOutcome, 0, len(in.Paths))
	loadedFiles := 0

	for _, path := range in.Paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			outcomes = append(outcomes, FileOutcome{Path: path, Missing: true})
			continue
		}

		fc, err := geo.ReadFile(path)
		if err != nil {
			outcomes = append(outcomes, FileOutcome{Path: path, Err: err})
			continue
		}

		start := len(trees)
		var fileErr error
	features:
		for _, f := range fc.Features {
			species := treeType(f.Properties, in.TypeFields)
			for _, xy := range pointCoords(f) {
				x, y := xy[0], xy[1]
				if transform != nil {
					x, y, err = transform(x, y)
					if err != nil {
						fileErr = err
						break features
					}
				}
				props := cloneProps(f.Properties)
				props["tree_type"] = species
				trees = append(trees, TreePoint{X: x, Y: y, Type: species, Props: props})
			}
		}
		if fileErr != nil {
			trees = trees[:start]
			outcomes = append(outcomes, FileOutcome{Path: path, Err: fileErr})
			continue
		}

		outcomes = append(outcomes, FileOutcome{Path: path, Loaded: len(trees) - start})
		loadedFiles++
	}

	if loadedFiles == 0 {
		return nil, outcomes, &LoadError{
			Layer: "trees",
			Path:  strings.Join(in.Paths, ","),
			Err:   errors.New("no tree census file loaded successfully"),
		}
	}
	return trees, outcomes, nil
}

// LoadSchools reads the school layer, keeping only Point and MultiPoint
// geometries. Noisy sources carry polygons and lines; dropping them is a
// data quality filter, not an error.
func LoadSchools(in config.VectorInput) ([]SchoolPoint, error) {
	fc, err := geo.ReadFile(in.Path)
	if err != nil {
		return nil, &LoadError{Layer: "schools", Path: in.Path, Err: err}
	}

	transform, err := layerTransform(in.Proj4)
	if err != nil {
		return nil, &LoadError{Layer: "schools", Path: in.Path, Err: err}
	}

	var schools []SchoolPoint
	dropped := 0
	for _, f := range fc.Features {
		coords := pointCoords(f)
		if coords == nil {
			dropped++
			continue
		}
		for _, xy := range coords {
			x, y := xy[0], xy[1]
			if transform != nil {
				x, y, err = transform(x, y)
				if err != nil {
					return nil, &LoadError{Layer: "schools", Path: in.Path, Err: err}
				}
			}
			schools = append(schools, SchoolPoint{X: x, Y: y, Props: f.Properties})
		}
	}

	if dropped > 0 {
		log.Debug().Int("dropped", dropped).Msg("Filtered non-point school geometries")
	}
	if len(schools) == 0 {
		return nil, &LoadError{Layer: "schools", Path: in.Path, Err: errors.New("no point features")}
	}
	return schools, nil
}

// treeType resolves the species label: the first configured field with a
// non-empty trimmed string value, else "unknown".
func treeType(props map[string]interface{}, fields []string) string {
	for _, field := range fields {
		if s, ok := props[field].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return "unknown"
}

// pointCoords extracts the coordinates of a Point feature, or the member
// coordinates of a MultiPoint. Any other geometry type yields nil.
func pointCoords(f geo.Feature) [][]float64 {
	switch f.GeometryType() {
	case "Point":
		var g struct {
			Coordinates []float64 `json:"coordinates"`
		}
		if err := json.Unmarshal(f.Geometry, &g); err != nil || len(g.Coordinates) < 2 {
			return nil
		}
		return [][]float64{g.Coordinates}
	case "MultiPoint":
		var g struct {
			Coordinates [][]float64 `json:"coordinates"`
		}
		if err := json.Unmarshal(f.Geometry, &g); err != nil {
			return nil
		}
		out := make([][]float64, 0, len(g.Coordinates))
		for _, c := range g.Coordinates {
			if len(c) >= 2 {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

func cloneProps(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props)+1)
	for k, v := range props {
		out[k] = v
	}
	return out
}
