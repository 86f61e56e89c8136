package pipeline

import (
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/twpayne/go-geos"

	"github.com/civickit/wardatlas/internal/geo"
)

// indexCellSize is the spatial index grid cell size in degrees, sized so a
// typical city ward envelope spans a handful of cells.
const indexCellSize = 0.01

// Aggregates holds the per-ward results of the spatial join.
type Aggregates struct {
	// SchoolCounts has an entry for every ward, zero included.
	SchoolCounts map[int]int

	// TreeCounts maps ward_id to species to count; wards without trees
	// have no entry.
	TreeCounts map[int]map[string]int

	TreesOutside   int
	SchoolsOutside int
	Ambiguous      int
}

// JoinPoints assigns each tree and school point to the ward whose interior
// strictly contains it and aggregates counts. Boundary-touching points match
// no ward, so adjacent wards never double-count; a point inside overlapping
// wards (a boundary data defect) is assigned to the lowest ward_id.
func JoinPoints(wards []*Ward, trees []TreePoint, schools []SchoolPoint) *Aggregates {
	idx := geo.NewIndex(indexCellSize)
	for _, w := range wards {
		idx.Add(w.ID, w.Geom)
	}

	agg := &Aggregates{
		SchoolCounts: make(map[int]int, len(wards)),
		TreeCounts:   make(map[int]map[string]int),
	}

	for _, tree := range trees {
		id, ok := assignWard(idx, tree.X, tree.Y, agg)
		if !ok {
			agg.TreesOutside++
			continue
		}
		byType := agg.TreeCounts[id]
		if byType == nil {
			byType = make(map[string]int)
			agg.TreeCounts[id] = byType
		}
		byType[tree.Type]++
	}

	for _, school := range schools {
		id, ok := assignWard(idx, school.X, school.Y, agg)
		if !ok {
			agg.SchoolsOutside++
			continue
		}
		agg.SchoolCounts[id]++
	}

	// Wards with no matched school carry an explicit zero.
	for _, w := range wards {
		if _, ok := agg.SchoolCounts[w.ID]; !ok {
			agg.SchoolCounts[w.ID] = 0
		}
	}

	return agg
}

// assignWard resolves the containing ward of a point via the spatial index.
func assignWard(idx *geo.Index, x, y float64, agg *Aggregates) (int, bool) {
	pt := geos.NewPoint([]float64{x, y})
	defer pt.Destroy()

	var matches []int
	for _, entry := range idx.Candidates(x, y) {
		if containsPoint(entry.Geom, pt) {
			matches = append(matches, entry.ID)
		}
	}

	switch len(matches) {
	case 0:
		return 0, false
	case 1:
		return matches[0], true
	default:
		sort.Ints(matches)
		agg.Ambiguous++
		log.Warn().
			Float64("lon", x).
			Float64("lat", y).
			Ints("ward_ids", matches).
			Msg("Point inside overlapping wards, assigned to lowest ward_id")
		return matches[0], true
	}
}

// containsPoint evaluates the strict-interior predicate, treating a GEOS
// exception on an invalid ward polygon as a non-match.
func containsPoint(poly *geos.Geom, pt *geos.Geom) (inside bool) {
	defer func() {
		if r := recover(); r != nil {
			inside = false
		}
	}()
	return poly.Contains(pt)
}
