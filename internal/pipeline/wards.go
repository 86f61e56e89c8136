// Package pipeline implements the ward statistics preprocessing stages:
// boundary normalization, point layer loading, raster clipping, zonal
// statistics, spatial join and export.
package pipeline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/twpayne/go-geos"

	"github.com/civickit/wardatlas/internal/config"
	"github.com/civickit/wardatlas/internal/geo"
)

// Ward is an administrative polygon region, the unit of aggregation for all
// derived statistics. Geom is full resolution in WGS84; derived attributes
// are filled by later stages.
type Ward struct {
	ID   int
	Name string
	Geom *geos.Geom

	NumSchools int
	AvgElev    *float64
	TreeDist   map[string]int
}

// LoadWards reads the ward boundary layer and produces the normalized ward
// set: polygonal geometry in WGS84 with canonical identifier and name.
//
// When the configured id field is present it is cast to integer and used
// verbatim; otherwise ids are the 1-based raw row index, which is only
// stable for a fixed input file. Names fall back to "Ward <id>".
func LoadWards(in config.WardsInput) ([]*Ward, error) {
	fc, err := geo.ReadFile(in.Path)
	if err != nil {
		return nil, &LoadError{Layer: "wards", Path: in.Path, Err: err}
	}
	if len(fc.Features) == 0 {
		return nil, &LoadError{Layer: "wards", Path: in.Path, Err: errors.New("no features")}
	}

	transform, err := layerTransform(in.Proj4)
	if err != nil {
		return nil, &LoadError{Layer: "wards", Path: in.Path, Err: err}
	}

	// The id field is used column-wise: either every ward gets its id
	// from the source field, or every ward gets a row-order id. A mix
	// would silently break key stability.
	useIDField := false
	if in.IDField != "" {
		for _, f := range fc.Features {
			if _, ok := f.Properties[in.IDField]; ok {
				useIDField = true
				break
			}
		}
		if !useIDField {
			log.Warn().
				Str("field", in.IDField).
				Msg("Ward id field absent, falling back to row-order ids")
		}
	}

	wards := make([]*Ward, 0, len(fc.Features))
	seen := make(map[int]bool, len(fc.Features))

	for i, f := range fc.Features {
		switch f.GeometryType() {
		case "Polygon", "MultiPolygon":
		default:
			log.Warn().
				Int("row", i).
				Str("type", f.GeometryType()).
				Msg("Skipping non-polygonal ward feature")
			continue
		}

		g, err := f.Geom()
		if err != nil {
			return nil, &LoadError{Layer: "wards", Path: in.Path, Err: err}
		}
		if transform != nil {
			g, err = geo.TransformGeom(g, transform)
			if err != nil {
				return nil, &LoadError{Layer: "wards", Path: in.Path, Err: err}
			}
		}

		var id int
		if useIDField {
			id, err = intProperty(f.Properties, in.IDField)
			if err != nil {
				return nil, &LoadError{Layer: "wards", Path: in.Path, Err: fmt.Errorf("row %d: %w", i, err)}
			}
		} else {
			// Raw row index, so skipped rows leave a gap instead of
			// shifting every id after them.
			id = i + 1
		}
		if seen[id] {
			return nil, &LoadError{Layer: "wards", Path: in.Path, Err: fmt.Errorf("duplicate ward_id %d", id)}
		}
		seen[id] = true

		name := stringProperty(f.Properties, in.NameField)
		if name == "" {
			name = "Ward " + strconv.Itoa(id)
		}

		wards = append(wards, &Ward{ID: id, Name: name, Geom: g})
	}

	if len(wards) == 0 {
		return nil, &LoadError{Layer: "wards", Path: in.Path, Err: errors.New("no polygonal features")}
	}
	return wards, nil
}

// layerTransform returns a source-to-WGS84 transformer, or nil when the
// layer is already geographic.
func layerTransform(proj4 string) (func(x, y float64) (float64, float64, error), error) {
	if proj4 == "" || proj4 == config.WGS84Proj4 {
		return nil, nil
	}
	t, err := geo.NewTransform(proj4, config.WGS84Proj4)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// intProperty casts an attribute to int, accepting the numeric and string
// encodings seen in survey exports.
func intProperty(props map[string]interface{}, key string) (int, error) {
	v, ok := props[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("attribute %q: %w", key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("attribute %q has unsupported type %T", key, v)
	}
}

// stringProperty reads a string attribute, returning "" when absent.
func stringProperty(props map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}
