package geo

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

const sampleFC = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [77.59, 12.97]},
      "properties": {"name": "Bengaluru"}
    },
    {
      "type": "Feature",
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]},
      "properties": {}
    }
  ]
}`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "layer.geojson")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadFile(t *testing.T) {
	fc, err := ReadFile(writeTemp(t, sampleFC))
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("len(Features) = %d, want 2", len(fc.Features))
	}
	if got := fc.Features[0].GeometryType(); got != "Point" {
		t.Errorf("GeometryType() = %q, want Point", got)
	}
	if got := fc.Features[1].GeometryType(); got != "Polygon" {
		t.Errorf("GeometryType() = %q, want Polygon", got)
	}
	if name, _ := fc.Features[0].Properties["name"].(string); name != "Bengaluru" {
		t.Errorf("properties name = %q, want Bengaluru", name)
	}
}

func TestReadFileErrors(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.geojson")); err == nil {
		t.Error("ReadFile() on a missing file should fail")
	}
	if _, err := ReadFile(writeTemp(t, "{not json")); err == nil {
		t.Error("ReadFile() on invalid JSON should fail")
	}
	if _, err := ReadFile(writeTemp(t, `{"type":"Feature"}`)); err == nil {
		t.Error("ReadFile() on a non-collection should fail")
	}
}

func TestFeatureGeom(t *testing.T) {
	fc, err := ReadFile(writeTemp(t, sampleFC))
	if err != nil {
		t.Fatal(err)
	}

	g, err := fc.Features[1].Geom()
	if err != nil {
		t.Fatalf("Geom() failed: %v", err)
	}
	if g.Area() != 1 {
		t.Errorf("unit square area = %v, want 1", g.Area())
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	fc, err := ReadFile(writeTemp(t, sampleFC))
	if err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "out.geojson")
	if err := fc.WriteFile(out); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	back, err := ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile() of written file failed: %v", err)
	}
	if len(back.Features) != len(fc.Features) {
		t.Errorf("round trip feature count = %d, want %d", len(back.Features), len(fc.Features))
	}
}

func TestNewPointFeature(t *testing.T) {
	f := NewPointFeature(77.59, 12.97, map[string]interface{}{"tree_type": "Neem"})

	if got := f.GeometryType(); got != "Point" {
		t.Fatalf("GeometryType() = %q, want Point", got)
	}
	var g struct {
		Coordinates []float64 `json:"coordinates"`
	}
	if err := json.Unmarshal(f.Geometry, &g); err != nil {
		t.Fatal(err)
	}
	if g.Coordinates[0] != 77.59 || g.Coordinates[1] != 12.97 {
		t.Errorf("coordinates = %v, want [77.59 12.97]", g.Coordinates)
	}
}
