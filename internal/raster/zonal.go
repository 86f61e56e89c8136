package raster

import (
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/twpayne/go-geos"
)

type zonalJob struct {
	id   int
	geom *geos.Geom
}

type zonalResult struct {
	id   int
	mean *float64
}

// ZonalMeans computes, for each polygon, the mean of grid cells whose center
// lies inside it. Polygons must be expressed in the grid's CRS. Nodata cells
// are excluded before averaging; a polygon with no valid cells, no raster
// overlap or a degenerate geometry yields a nil entry.
//
// The computation is data-parallel across polygons: the grid is only read
// and each result lands under its own key.
func ZonalMeans(g *Grid, geoms map[int]*geos.Geom, workers int) map[int]*float64 {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	jobs := make(chan zonalJob, len(geoms))
	results := make(chan zonalResult, len(geoms))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- zonalResult{id: job.id, mean: zonalMean(g, job.geom)}
			}
		}()
	}

	for id, geom := range geoms {
		jobs <- zonalJob{id: id, geom: geom}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	means := make(map[int]*float64, len(geoms))
	for res := range results {
		means[res.id] = res.mean
	}
	return means
}

// zonalMean averages the valid cells inside one polygon. GEOS raises
// exceptions as panics on degenerate geometries; those count as "no value"
// rather than aborting the run.
func zonalMean(g *Grid, poly *geos.Geom) (mean *float64) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("cause", r).Msg("Zonal mask failed, recording no value")
			mean = nil
		}
	}()

	if poly == nil || poly.IsEmpty() {
		return nil
	}

	col0, row0, col1, row1, ok := g.window(poly.Bounds())
	if !ok {
		return nil
	}

	var sum float64
	var n int
	for row := row0; row <= row1; row++ {
		for col := col0; col <= col1; col++ {
			v := g.At(col, row)
			if !g.Valid(v) {
				continue
			}
			x, y := g.CellCenter(col, row)
			pt := geos.NewPoint([]float64{x, y})
			inside := poly.Contains(pt)
			pt.Destroy()
			if inside {
				sum += v
				n++
			}
		}
	}

	if n == 0 {
		return nil
	}
	m := sum / float64(n)
	return &m
}
