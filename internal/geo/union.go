package geo

import "github.com/twpayne/go-geos"

// UnionAll dissolves the geometries into a single geometry using a pairwise
// cascaded union, which stays robust on large polygon sets where a linear
// fold accumulates precision noise. The inputs are not consumed.
func UnionAll(geoms []*geos.Geom) *geos.Geom {
	if len(geoms) == 0 {
		return nil
	}
	owned := make([]*geos.Geom, len(geoms))
	for i, g := range geoms {
		owned[i] = g.Clone()
	}
	return cascadedUnion(owned)
}

// cascadedUnion consumes its inputs, destroying intermediates as it folds.
func cascadedUnion(geoms []*geos.Geom) *geos.Geom {
	if len(geoms) == 1 {
		return geoms[0]
	}

	mid := len(geoms) / 2
	left := cascadedUnion(geoms[:mid])
	right := cascadedUnion(geoms[mid:])

	result := left.Union(right)
	left.Destroy()
	right.Destroy()

	return result
}
