package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/jonas-p/go-shp"
	"github.com/tdewolff/minify/v2"
	mjson "github.com/tdewolff/minify/v2/json"
	"github.com/twpayne/go-geos"

	"github.com/civickit/wardatlas/internal/geo"
)

// wgs84WKT is written alongside the ward shapefile so GIS tools pick up the
// layer CRS.
const wgs84WKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// Export finalizes and persists every pipeline artifact under dir: the
// simplified ward layer (GeoJSON and shapefile), the full-resolution tree
// and school layers, and the two flattened summary tables. All files are
// overwritten wholesale.
//
// Ward geometry is simplified here, strictly after aggregation, so the
// transmitted payload shrinks without touching the computed statistics.
func Export(dir string, wards []*Ward, trees []TreePoint, schools []SchoolPoint, tolerance float64) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	simplified := make([]*geos.Geom, len(wards))
	for i, w := range wards {
		simplified[i] = w.Geom.TopologyPreserveSimplify(tolerance)
	}

	if err := writeWardsGeoJSON(filepath.Join(dir, "wards.geojson"), wards, simplified); err != nil {
		return fmt.Errorf("export wards.geojson: %w", err)
	}
	if err := writeTreesGeoJSON(filepath.Join(dir, "trees.geojson"), trees); err != nil {
		return fmt.Errorf("export trees.geojson: %w", err)
	}
	if err := writeSchoolsGeoJSON(filepath.Join(dir, "schools.geojson"), schools); err != nil {
		return fmt.Errorf("export schools.geojson: %w", err)
	}
	if err := writeWardStatsCSV(filepath.Join(dir, "ward_stats.csv"), wards); err != nil {
		return fmt.Errorf("export ward_stats.csv: %w", err)
	}
	if err := writeTreeCountsCSV(filepath.Join(dir, "ward_tree_counts.csv"), wards); err != nil {
		return fmt.Errorf("export ward_tree_counts.csv: %w", err)
	}
	if err := writeWardsShapefile(dir, wards, simplified); err != nil {
		return fmt.Errorf("export wards.shp: %w", err)
	}
	return nil
}

// TreeDistJSON serializes a species distribution as a JSON object string
// with deterministic key order; the tabular formats have no native nested
// mapping type.
func TreeDistJSON(dist map[string]int) string {
	if len(dist) == 0 {
		return "{}"
	}
	data, _ := json.Marshal(dist)
	return string(data)
}

func wardProperties(w *Ward) map[string]interface{} {
	var elev interface{}
	if w.AvgElev != nil {
		elev = *w.AvgElev
	}
	return map[string]interface{}{
		"ward_id":     w.ID,
		"ward_name":   w.Name,
		"num_schools": w.NumSchools,
		"avg_elev":    elev,
		"tree_dist":   TreeDistJSON(w.TreeDist),
	}
}

// writeWardsGeoJSON writes the simplified ward layer, minified since this is
// the payload the presentation layer transfers per page load.
func writeWardsGeoJSON(path string, wards []*Ward, simplified []*geos.Geom) error {
	fc := geo.FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]geo.Feature, 0, len(wards)),
	}
	for i, w := range wards {
		fc.Features = append(fc.Features, geo.NewFeature(simplified[i], wardProperties(w)))
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return err
	}

	m := minify.New()
	m.AddFunc("application/json", mjson.Minify)
	data, err = m.Bytes("application/json", data)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func writeTreesGeoJSON(path string, trees []TreePoint) error {
	fc := geo.FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]geo.Feature, 0, len(trees)),
	}
	for _, t := range trees {
		fc.Features = append(fc.Features, geo.NewPointFeature(t.X, t.Y, t.Props))
	}
	return fc.WriteFile(path)
}

func writeSchoolsGeoJSON(path string, schools []SchoolPoint) error {
	fc := geo.FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]geo.Feature, 0, len(schools)),
	}
	for _, s := range schools {
		fc.Features = append(fc.Features, geo.NewPointFeature(s.X, s.Y, s.Props))
	}
	return fc.WriteFile(path)
}

// writeWardStatsCSV writes one row per ward, in input order. An absent
// average elevation is an empty cell, never zero.
func writeWardStatsCSV(path string, wards []*Ward) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"ward_id", "ward_name", "num_schools", "avg_elev"}); err != nil {
		return err
	}
	for _, ward := range wards {
		elev := ""
		if ward.AvgElev != nil {
			elev = strconv.FormatFloat(*ward.AvgElev, 'f', -1, 64)
		}
		row := []string{
			strconv.Itoa(ward.ID),
			ward.Name,
			strconv.Itoa(ward.NumSchools),
			elev,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// writeTreeCountsCSV writes one row per (ward, species) pair, sorted by
// ward_id then species so reruns are byte-identical.
func writeTreeCountsCSV(path string, wards []*Ward) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	ordered := make([]*Ward, len(wards))
	copy(ordered, wards)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	w := csv.NewWriter(f)
	if err := w.Write([]string{"ward_id", "tree_type", "count"}); err != nil {
		return err
	}
	for _, ward := range ordered {
		species := make([]string, 0, len(ward.TreeDist))
		for s := range ward.TreeDist {
			species = append(species, s)
		}
		sort.Strings(species)

		for _, s := range species {
			row := []string{
				strconv.Itoa(ward.ID),
				s,
				strconv.Itoa(ward.TreeDist[s]),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

// writeWardsShapefile writes the simplified ward layer as wards.shp with a
// companion .prj, for GIS consumers that do not speak GeoJSON.
func writeWardsShapefile(dir string, wards []*Ward, simplified []*geos.Geom) error {
	path := filepath.Join(dir, "wards.shp")
	shape, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return err
	}

	// DBF limits field names to 10 characters.
	fields := []shp.Field{
		shp.NumberField("ward_id", 10),
		shp.StringField("ward_name", 100),
		shp.NumberField("schools", 10),
		shp.FloatField("avg_elev", 15, 5),
		shp.StringField("tree_dist", 254),
	}
	if err := shape.SetFields(fields); err != nil {
		return err
	}

	for i, w := range wards {
		shape.Write(shpPolygon(simplified[i]))

		elev := interface{}("")
		if w.AvgElev != nil {
			elev = *w.AvgElev
		}
		attrs := []interface{}{w.ID, w.Name, w.NumSchools, elev, TreeDistJSON(w.TreeDist)}
		for col, v := range attrs {
			if err := shape.WriteAttribute(i, col, v); err != nil {
				return fmt.Errorf("ward %d attribute %s: %w", w.ID, fields[col].String(), err)
			}
		}
	}
	shape.Close()

	return os.WriteFile(filepath.Join(dir, "wards.prj"), []byte(wgs84WKT), 0644)
}

// shpPolygon flattens a GEOS polygon or multipolygon into shapefile
// parts-and-points form.
func shpPolygon(g *geos.Geom) *shp.Polygon {
	poly := &shp.Polygon{}
	part := int32(0)

	addRing := func(ring *geos.Geom) {
		cs := ring.CoordSeq()
		n := cs.Size()
		if n == 0 {
			return
		}
		poly.Parts = append(poly.Parts, part)
		for i := 0; i < n; i++ {
			poly.Points = append(poly.Points, shp.Point{X: cs.X(i), Y: cs.Y(i)})
		}
		part += int32(n)
	}
	addPolygon := func(p *geos.Geom) {
		addRing(p.ExteriorRing())
		for i := 0; i < p.NumInteriorRings(); i++ {
			addRing(p.InteriorRing(i))
		}
	}

	switch g.TypeID() {
	case geos.TypeIDPolygon:
		addPolygon(g)
	case geos.TypeIDMultiPolygon:
		for i := 0; i < g.NumGeometries(); i++ {
			addPolygon(g.Geometry(i))
		}
	}

	// The record header counts and bbox are serialized from these fields
	// verbatim; readers recover no geometry when they stay zero.
	poly.NumParts = int32(len(poly.Parts))
	poly.NumPoints = int32(len(poly.Points))
	poly.Box = shp.BBoxFromPoints(poly.Points)
	return poly
}
