package pipeline

import (
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/civickit/wardatlas/internal/config"
)

func pointFeature(props string, x, y float64) string {
	return `{"type":"Feature","geometry":{"type":"Point","coordinates":[` +
		strconvF(x) + `,` + strconvF(y) + `]},"properties":` + props + `}`
}

func strconvF(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func TestLoadTreesMergesFiles(t *testing.T) {
	a := writeLayer(t, "trees_a.geojson", `{"type":"FeatureCollection","features":[`+
		pointFeature(`{"TreeName":"Rain Tree"}`, 77.59, 12.97)+`,`+
		pointFeature(`{"tree_type":"Gulmohar"}`, 77.60, 12.98)+
		`]}`)
	b := writeLayer(t, "trees_b.geojson", `{"type":"FeatureCollection","features":[`+
		pointFeature(`{"TreeName":"  "}`, 77.61, 12.99)+
		`]}`)

	trees, outcomes, err := LoadTrees(config.TreesInput{
		Paths:      []string{a, b},
		TypeFields: []string{"TreeName", "tree_type"},
	})
	if err != nil {
		t.Fatalf("LoadTrees() failed: %v", err)
	}
	if len(trees) != 3 {
		t.Fatalf("len(trees) = %d, want 3", len(trees))
	}
	if trees[0].Type != "Rain Tree" {
		t.Errorf("trees[0].Type = %q, want Rain Tree", trees[0].Type)
	}
	// first field empty, second field absent: falls back past blank values
	if trees[1].Type != "Gulmohar" {
		t.Errorf("trees[1].Type = %q, want Gulmohar", trees[1].Type)
	}
	// whitespace-only species normalizes to unknown
	if trees[2].Type != "unknown" {
		t.Errorf("trees[2].Type = %q, want unknown", trees[2].Type)
	}
	if trees[0].Props["tree_type"] != "Rain Tree" {
		t.Errorf("props tree_type = %v, want Rain Tree", trees[0].Props["tree_type"])
	}
	if len(outcomes) != 2 || !outcomes[0].OK() || !outcomes[1].OK() {
		t.Errorf("outcomes = %+v, want both OK", outcomes)
	}
}

func TestLoadTreesSkipsMissingFiles(t *testing.T) {
	present := writeLayer(t, "trees.geojson", `{"type":"FeatureCollection","features":[`+
		pointFeature(`{"TreeName":"Neem"}`, 77.59, 12.97)+
		`]}`)
	absent := filepath.Join(t.TempDir(), "wards_2015.geojson")

	trees, outcomes, err := LoadTrees(config.TreesInput{
		Paths:      []string{absent, present},
		TypeFields: []string{"TreeName"},
	})
	if err != nil {
		t.Fatalf("LoadTrees() failed: %v", err)
	}
	if len(trees) != 1 {
		t.Errorf("len(trees) = %d, want 1", len(trees))
	}
	if !outcomes[0].Missing {
		t.Errorf("outcomes[0].Missing = false, want true")
	}
	if outcomes[1].Loaded != 1 {
		t.Errorf("outcomes[1].Loaded = %d, want 1", outcomes[1].Loaded)
	}
}

func TestLoadTreesRecordsParseFailures(t *testing.T) {
	good := writeLayer(t, "good.geojson", `{"type":"FeatureCollection","features":[`+
		pointFeature(`{}`, 77.59, 12.97)+
		`]}`)
	bad := writeLayer(t, "bad.geojson", `{"type":"Feature`)

	trees, outcomes, err := LoadTrees(config.TreesInput{Paths: []string{bad, good}})
	if err != nil {
		t.Fatalf("LoadTrees() failed: %v", err)
	}
	if len(trees) != 1 {
		t.Errorf("len(trees) = %d, want 1", len(trees))
	}
	if outcomes[0].Err == nil {
		t.Errorf("outcomes[0].Err = nil, want parse error")
	}
}

func TestLoadTreesAllFilesFail(t *testing.T) {
	bad := writeLayer(t, "bad.geojson", `not json`)
	absent := filepath.Join(t.TempDir(), "absent.geojson")

	_, _, err := LoadTrees(config.TreesInput{Paths: []string{bad, absent}})
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("LoadTrees() = %v, want LoadError when nothing loads", err)
	}
}

func TestLoadSchoolsFiltersGeometryTypes(t *testing.T) {
	path := writeLayer(t, "schools.geojson", `{"type":"FeatureCollection","features":[`+
		pointFeature(`{"name":"GHPS Jayanagar"}`, 77.58, 12.93)+`,`+
		`{"type":"Feature","geometry":{"type":"MultiPoint","coordinates":[[77.60,12.95],[77.61,12.96]]},"properties":{"name":"cluster"}},`+
		squareFeature(`{"name":"campus polygon"}`, 77, 12)+
		`]}`)

	schools, err := LoadSchools(config.VectorInput{Path: path})
	if err != nil {
		t.Fatalf("LoadSchools() failed: %v", err)
	}
	// 1 point + 2 exploded multipoint members, polygon dropped
	if len(schools) != 3 {
		t.Fatalf("len(schools) = %d, want 3", len(schools))
	}
	if schools[0].Props["name"] != "GHPS Jayanagar" {
		t.Errorf("schools[0] name = %v, want GHPS Jayanagar", schools[0].Props["name"])
	}
}

func TestLoadSchoolsNoPoints(t *testing.T) {
	path := writeLayer(t, "schools.geojson", `{"type":"FeatureCollection","features":[`+
		squareFeature(`{}`, 0, 0)+
		`]}`)

	_, err := LoadSchools(config.VectorInput{Path: path})
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("LoadSchools() = %v, want LoadError when no points survive", err)
	}
}

func TestLoadTreesReprojects(t *testing.T) {
	// UTM 43N coordinates near Bengaluru should land back in lon/lat range
	path := writeLayer(t, "trees_utm.geojson", `{"type":"FeatureCollection","features":[`+
		pointFeature(`{"TreeName":"Peepal"}`, 779000, 1434000)+
		`]}`)

	trees, _, err := LoadTrees(config.TreesInput{
		Paths:      []string{path},
		TypeFields: []string{"TreeName"},
		Proj4:      "+proj=utm +zone=43 +datum=WGS84 +units=m +no_defs",
	})
	if err != nil {
		t.Fatalf("LoadTrees() failed: %v", err)
	}
	if len(trees) != 1 {
		t.Fatalf("len(trees) = %d, want 1", len(trees))
	}
	if trees[0].X < 76 || trees[0].X > 79 || trees[0].Y < 12 || trees[0].Y > 14 {
		t.Errorf("reprojected tree at (%f, %f), want near Bengaluru", trees[0].X, trees[0].Y)
	}
}
