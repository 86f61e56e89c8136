package pipeline

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"

	"github.com/civickit/wardatlas/internal/geo"
)

func exportFixture(t *testing.T) (string, []*Ward) {
	t.Helper()
	elev := 912.5
	w1 := wardAt(t, 1, 0, 0)
	w1.Name = "Shantinagar"
	w1.NumSchools = 2
	w1.AvgElev = &elev
	w1.TreeDist = map[string]int{"Rain Tree": 3, "Neem": 1}

	w2 := wardAt(t, 2, 1, 0)
	w2.Name = "Domlur"
	// no elevation sample, no trees

	return t.TempDir(), []*Ward{w1, w2}
}

func TestExportWritesAllArtifacts(t *testing.T) {
	dir, wards := exportFixture(t)
	trees := []TreePoint{{X: 0.5, Y: 0.5, Type: "Neem", Props: map[string]interface{}{"tree_type": "Neem"}}}
	schools := []SchoolPoint{{X: 0.25, Y: 0.25, Props: map[string]interface{}{"name": "GHPS"}}}

	if err := Export(dir, wards, trees, schools, 0.0001); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	for _, name := range []string{
		"wards.geojson", "trees.geojson", "schools.geojson",
		"ward_stats.csv", "ward_tree_counts.csv",
		"wards.shp", "wards.dbf", "wards.prj",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}
}

func TestExportWardStatsCSV(t *testing.T) {
	dir, wards := exportFixture(t)
	if err := Export(dir, wards, nil, nil, 0.0001); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "ward_stats.csv"))
	if err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	want := [][]string{
		{"ward_id", "ward_name", "num_schools", "avg_elev"},
		{"1", "Shantinagar", "2", "912.5"},
		{"2", "Domlur", "0", ""}, // missing elevation is an empty cell
	}
	if len(rows) != len(want) {
		t.Fatalf("row count = %d, want %d", len(rows), len(want))
	}
	for i := range want {
		for j := range want[i] {
			if rows[i][j] != want[i][j] {
				t.Errorf("row %d col %d = %q, want %q", i, j, rows[i][j], want[i][j])
			}
		}
	}
}

func TestExportTreeCountsCSVSorted(t *testing.T) {
	dir, wards := exportFixture(t)
	if err := Export(dir, wards, nil, nil, 0.0001); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "ward_tree_counts.csv"))
	if err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	// header, then ward 1 species in lexical order; ward 2 has no rows
	want := [][]string{
		{"ward_id", "tree_type", "count"},
		{"1", "Neem", "1"},
		{"1", "Rain Tree", "3"},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}
	for i := range want {
		if strings.Join(rows[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestExportWardsGeoJSON(t *testing.T) {
	dir, wards := exportFixture(t)
	if err := Export(dir, wards, nil, nil, 0.0001); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	path := filepath.Join(dir, "wards.geojson")
	fc, err := geo.ReadFile(path)
	if err != nil {
		t.Fatalf("reading exported wards: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("feature count = %d, want 2", len(fc.Features))
	}

	props := fc.Features[0].Properties
	if props["ward_name"] != "Shantinagar" {
		t.Errorf("ward_name = %v", props["ward_name"])
	}
	if props["tree_dist"] != `{"Neem":1,"Rain Tree":3}` {
		t.Errorf("tree_dist = %v", props["tree_dist"])
	}
	// ward with no elevation serializes as JSON null, not 0
	if v, ok := fc.Features[1].Properties["avg_elev"]; !ok || v != nil {
		t.Errorf("avg_elev = %v (present=%v), want null", v, ok)
	}

	// minified output carries no insignificant whitespace
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("\": ")) || bytes.Contains(data, []byte("\n")) {
		t.Error("wards.geojson is not minified")
	}
}

func TestExportPointLayers(t *testing.T) {
	dir, wards := exportFixture(t)
	trees := []TreePoint{
		{X: 0.5, Y: 0.5, Type: "Neem", Props: map[string]interface{}{"tree_type": "Neem"}},
		{X: 0.6, Y: 0.6, Type: "unknown", Props: map[string]interface{}{"tree_type": "unknown"}},
	}
	schools := []SchoolPoint{{X: 0.25, Y: 0.25, Props: map[string]interface{}{"name": "GHPS"}}}

	if err := Export(dir, wards, trees, schools, 0.0001); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	tfc, err := geo.ReadFile(filepath.Join(dir, "trees.geojson"))
	if err != nil {
		t.Fatal(err)
	}
	if len(tfc.Features) != 2 {
		t.Errorf("trees feature count = %d, want 2", len(tfc.Features))
	}
	if tfc.Features[0].Properties["tree_type"] != "Neem" {
		t.Errorf("tree_type = %v, want Neem", tfc.Features[0].Properties["tree_type"])
	}

	sfc, err := geo.ReadFile(filepath.Join(dir, "schools.geojson"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sfc.Features) != 1 {
		t.Errorf("schools feature count = %d, want 1", len(sfc.Features))
	}
}

func TestExportShapefileRoundTrip(t *testing.T) {
	dir, wards := exportFixture(t)
	if err := Export(dir, wards, nil, nil, 0.0001); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	r, err := shp.Open(filepath.Join(dir, "wards.shp"))
	if err != nil {
		t.Fatalf("opening exported shapefile: %v", err)
	}
	defer func() { _ = r.Close() }()

	n := 0
	for r.Next() {
		_, s := r.Shape()
		poly, ok := s.(*shp.Polygon)
		if !ok {
			t.Fatalf("record %d is %T, want *shp.Polygon", n, s)
		}
		if poly.NumParts == 0 || poly.NumPoints == 0 {
			t.Errorf("record %d read back empty: NumParts=%d NumPoints=%d", n, poly.NumParts, poly.NumPoints)
		}
		if int(poly.NumParts) != len(poly.Parts) || int(poly.NumPoints) != len(poly.Points) {
			t.Errorf("record %d header disagrees with payload: %d/%d parts, %d/%d points",
				n, poly.NumParts, len(poly.Parts), poly.NumPoints, len(poly.Points))
		}
		if poly.Box.MaxX <= poly.Box.MinX || poly.Box.MaxY <= poly.Box.MinY {
			t.Errorf("record %d has degenerate bbox %+v", n, poly.Box)
		}
		n++
	}
	if err := r.Err(); err != nil {
		t.Fatalf("reading shapefile records: %v", err)
	}
	if n != len(wards) {
		t.Errorf("record count = %d, want %d", n, len(wards))
	}

	if got := r.ReadAttribute(0, 1); got != "Shantinagar" {
		t.Errorf("ward_name attribute = %q, want Shantinagar", got)
	}
}

func TestTreeDistJSON(t *testing.T) {
	if got := TreeDistJSON(nil); got != "{}" {
		t.Errorf("TreeDistJSON(nil) = %q, want {}", got)
	}
	got := TreeDistJSON(map[string]int{"b": 2, "a": 1})
	if got != `{"a":1,"b":2}` {
		t.Errorf("TreeDistJSON = %q, want sorted keys", got)
	}
}
