package geo

import (
	"math"

	"github.com/twpayne/go-geos"
)

// Index is a uniform-grid spatial index over geometry envelopes. It serves
// one query shape: which geometries could contain a given point. Exact
// containment is still the caller's job; the index only prunes candidates.
type Index struct {
	cellSize float64
	grid     map[[2]int][]*Entry
}

// Entry pairs an indexed geometry with its stable identifier.
type Entry struct {
	Geom *geos.Geom
	ID   int
}

// NewIndex creates an index with the given grid cell size, expressed in the
// units of the indexed CRS.
func NewIndex(cellSize float64) *Index {
	return &Index{
		cellSize: cellSize,
		grid:     make(map[[2]int][]*Entry),
	}
}

// Add registers a geometry under every grid cell its envelope touches.
func (idx *Index) Add(id int, g *geos.Geom) {
	if g == nil {
		return
	}
	bounds := g.Bounds()
	if bounds == nil {
		return
	}

	entry := &Entry{Geom: g, ID: id}

	minCellX := idx.cell(bounds.MinX)
	minCellY := idx.cell(bounds.MinY)
	maxCellX := idx.cell(bounds.MaxX)
	maxCellY := idx.cell(bounds.MaxY)

	for cx := minCellX; cx <= maxCellX; cx++ {
		for cy := minCellY; cy <= maxCellY; cy++ {
			key := [2]int{cx, cy}
			idx.grid[key] = append(idx.grid[key], entry)
		}
	}
}

// Candidates returns the entries whose envelope cell contains the point, in
// insertion order.
func (idx *Index) Candidates(x, y float64) []*Entry {
	return idx.grid[[2]int{idx.cell(x), idx.cell(y)}]
}

func (idx *Index) cell(v float64) int {
	return int(math.Floor(v / idx.cellSize))
}
