package raster

import (
	"errors"

	"github.com/twpayne/go-geos"
)

// Clip restricts the grid to the footprint of mask, which must be expressed
// in the grid's CRS. The result covers the mask envelope snapped to the
// pixel grid; cells whose center falls outside the mask are set to nodata.
// The source grid is never mutated.
func Clip(g *Grid, mask *geos.Geom) (*Grid, error) {
	if mask == nil || mask.IsEmpty() {
		return nil, errors.New("clip: empty mask")
	}

	col0, row0, col1, row1, ok := g.window(mask.Bounds())
	if !ok {
		return nil, errors.New("clip: mask does not intersect raster extent")
	}

	width := col1 - col0 + 1
	height := row1 - row0 + 1

	out := &Grid{
		Data:     make([]float64, width*height),
		Width:    width,
		Height:   height,
		NoData:   g.NoData,
		WKT:      g.WKT,
		Proj4:    g.Proj4,
		DataType: g.DataType,
	}
	out.Transform = g.Transform
	out.Transform[0] = g.Transform[0] + float64(col0)*g.Transform[1]
	out.Transform[3] = g.Transform[3] + float64(row0)*g.Transform[5]

	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			v := g.At(col0+col, row0+row)
			if g.Valid(v) {
				x, y := out.CellCenter(col, row)
				pt := geos.NewPoint([]float64{x, y})
				if !mask.Contains(pt) {
					v = g.NoData
				}
				pt.Destroy()
			}
			out.Data[row*width+col] = v
		}
	}
	return out, nil
}
