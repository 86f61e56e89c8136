// Package geo bridges GeoJSON feature collections, GEOS geometries and
// coordinate reprojection for the pipeline.
package geo

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/twpayne/go-geos"
)

// FeatureCollection is a GeoJSON feature collection. Geometries are kept as
// raw JSON so features can be filtered by type without a GEOS round trip.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a single GeoJSON feature.
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// geometryHeader is the minimal decode needed to inspect a geometry type.
type geometryHeader struct {
	Type string `json:"type"`
}

// ReadFile parses a GeoJSON feature collection from disk.
func ReadFile(path string) (*FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fc FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("parse %s: not a FeatureCollection", path)
	}
	return &fc, nil
}

// WriteFile serializes the collection to disk, overwriting any previous file.
func (fc *FeatureCollection) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return json.NewEncoder(f).Encode(fc)
}

// GeometryType reports the declared GeoJSON geometry type of the feature
// without building a GEOS geometry.
func (f *Feature) GeometryType() string {
	if len(f.Geometry) == 0 {
		return ""
	}
	var h geometryHeader
	if err := json.Unmarshal(f.Geometry, &h); err != nil {
		return ""
	}
	return h.Type
}

// Geom decodes the feature geometry into a GEOS geometry.
func (f *Feature) Geom() (*geos.Geom, error) {
	if len(f.Geometry) == 0 {
		return nil, fmt.Errorf("feature has no geometry")
	}
	g, err := geos.NewGeomFromGeoJSON(string(f.Geometry))
	if err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	return g, nil
}

// NewFeature builds a feature from a GEOS geometry and its attributes.
func NewFeature(g *geos.Geom, props map[string]interface{}) Feature {
	return Feature{
		Type:       "Feature",
		Geometry:   json.RawMessage(g.ToGeoJSON(-1)),
		Properties: props,
	}
}

// pointGeometry is the serialized form of a GeoJSON point.
type pointGeometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// NewPointFeature builds a point feature from bare coordinates.
func NewPointFeature(x, y float64, props map[string]interface{}) Feature {
	raw, _ := json.Marshal(pointGeometry{Type: "Point", Coordinates: []float64{x, y}})
	return Feature{
		Type:       "Feature",
		Geometry:   raw,
		Properties: props,
	}
}
