package geo

import (
	"fmt"

	"github.com/ctessum/geom/proj"
	"github.com/twpayne/go-geos"
)

// NewTransform builds a coordinate transformer between two PROJ.4 CRS
// definitions.
func NewTransform(srcProj4, dstProj4 string) (proj.Transformer, error) {
	src, err := proj.Parse(srcProj4)
	if err != nil {
		return nil, fmt.Errorf("parse source CRS %q: %w", srcProj4, err)
	}
	dst, err := proj.Parse(dstProj4)
	if err != nil {
		return nil, fmt.Errorf("parse target CRS %q: %w", dstProj4, err)
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("build transform: %w", err)
	}
	return t, nil
}

// TransformXY reprojects a single coordinate pair.
func TransformXY(t proj.Transformer, x, y float64) (float64, float64, error) {
	return t(x, y)
}

// TransformGeom rebuilds a GEOS geometry with every coordinate reprojected.
// Point, MultiPoint, Polygon, MultiPolygon and GeometryCollection inputs are
// supported; other types report an error.
func TransformGeom(g *geos.Geom, t proj.Transformer) (*geos.Geom, error) {
	switch g.TypeID() {
	case geos.TypeIDPoint:
		cs := g.CoordSeq()
		x, y, err := t(cs.X(0), cs.Y(0))
		if err != nil {
			return nil, err
		}
		return geos.NewPoint([]float64{x, y}), nil

	case geos.TypeIDPolygon:
		rings, err := transformRings(g, t)
		if err != nil {
			return nil, err
		}
		return geos.NewPolygon(rings), nil

	case geos.TypeIDMultiPoint, geos.TypeIDMultiPolygon, geos.TypeIDGeometryCollection:
		parts := make([]*geos.Geom, g.NumGeometries())
		for i := 0; i < g.NumGeometries(); i++ {
			p, err := TransformGeom(g.Geometry(i), t)
			if err != nil {
				return nil, err
			}
			parts[i] = p
		}
		return geos.NewCollection(g.TypeID(), parts), nil

	default:
		return nil, fmt.Errorf("transform: unsupported geometry type %d", g.TypeID())
	}
}

// transformRings reprojects the exterior and interior rings of a polygon.
func transformRings(poly *geos.Geom, t proj.Transformer) ([][][]float64, error) {
	rings := make([][][]float64, 0, 1+poly.NumInteriorRings())

	ext, err := transformRing(poly.ExteriorRing(), t)
	if err != nil {
		return nil, err
	}
	rings = append(rings, ext)

	for i := 0; i < poly.NumInteriorRings(); i++ {
		ring, err := transformRing(poly.InteriorRing(i), t)
		if err != nil {
			return nil, err
		}
		rings = append(rings, ring)
	}
	return rings, nil
}

func transformRing(ring *geos.Geom, t proj.Transformer) ([][]float64, error) {
	cs := ring.CoordSeq()
	out := make([][]float64, cs.Size())
	for i := 0; i < cs.Size(); i++ {
		x, y, err := t(cs.X(i), cs.Y(i))
		if err != nil {
			return nil, err
		}
		out[i] = []float64{x, y}
	}
	return out, nil
}
