// Package raster implements the elevation grid model: GeoTIFF access,
// footprint clipping and per-polygon zonal statistics.
package raster

import (
	"fmt"
	"math"

	"github.com/lukeroth/gdal"
	"github.com/twpayne/go-geos"
)

// RasterError reports a fatal problem with the elevation raster.
type RasterError struct {
	Path string
	Err  error
}

func (e *RasterError) Error() string {
	return fmt.Sprintf("raster %s: %v", e.Path, e.Err)
}

func (e *RasterError) Unwrap() error { return e.Err }

// Grid is a single-band raster held in memory. Data is row-major with
// Height*Width cells. The geotransform follows the GDAL convention and is
// always north-up (no rotation terms).
type Grid struct {
	Data      []float64
	Width     int
	Height    int
	Transform [6]float64
	NoData    float64
	WKT       string
	Proj4     string
	DataType  gdal.DataType
}

// At returns the cell value at the given column and row.
func (g *Grid) At(col, row int) float64 {
	return g.Data[row*g.Width+col]
}

// CellCenter returns the CRS coordinates of a cell's center point.
func (g *Grid) CellCenter(col, row int) (x, y float64) {
	fc := float64(col) + 0.5
	fr := float64(row) + 0.5
	x = g.Transform[0] + fc*g.Transform[1]
	y = g.Transform[3] + fr*g.Transform[5]
	return x, y
}

// Valid reports whether the value is a usable measurement: finite and not
// the nodata sentinel.
func (g *Grid) Valid(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v != g.NoData
}

// window converts a CRS-space envelope to a clamped pixel window. ok is
// false when the envelope misses the grid entirely. The returned bounds are
// inclusive.
func (g *Grid) window(b *geos.Box2D) (col0, row0, col1, row1 int, ok bool) {
	dx := g.Transform[1]
	dy := g.Transform[5] // negative for north-up rasters

	colF0 := (b.MinX - g.Transform[0]) / dx
	colF1 := (b.MaxX - g.Transform[0]) / dx

	rowFA := (b.MinY - g.Transform[3]) / dy
	rowFB := (b.MaxY - g.Transform[3]) / dy
	rowF0 := math.Min(rowFA, rowFB)
	rowF1 := math.Max(rowFA, rowFB)

	col0 = int(math.Floor(colF0))
	col1 = int(math.Ceil(colF1)) - 1
	row0 = int(math.Floor(rowF0))
	row1 = int(math.Ceil(rowF1)) - 1

	if col1 >= g.Width {
		col1 = g.Width - 1
	}
	if row1 >= g.Height {
		row1 = g.Height - 1
	}
	if col0 < 0 {
		col0 = 0
	}
	if row0 < 0 {
		row0 = 0
	}
	if col0 > col1 || row0 > row1 || col0 >= g.Width || row0 >= g.Height {
		return 0, 0, 0, 0, false
	}
	return col0, row0, col1, row1, true
}
