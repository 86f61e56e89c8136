package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/twpayne/go-geos"

	"github.com/civickit/wardatlas/internal/config"
	"github.com/civickit/wardatlas/internal/geo"
	"github.com/civickit/wardatlas/internal/raster"
)

// Run executes the full preprocessing pipeline: boundary normalization,
// point layer loading, raster clipping, zonal statistics, spatial join and
// export. Each stage runs to completion before the next; a fatal input
// error aborts the run with the offending file in the error.
func Run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.ProcessedDir, 0755); err != nil {
		return err
	}

	log.Info().Str("path", cfg.Wards.Path).Msg("Loading ward boundaries")
	wards, err := LoadWards(cfg.Wards)
	if err != nil {
		return err
	}
	log.Info().Int("wards", len(wards)).Msg("Ward boundaries normalized")

	log.Info().Int("files", len(cfg.Trees.Paths)).Msg("Loading tree census files")
	trees, outcomes, err := LoadTrees(cfg.Trees)
	for _, o := range outcomes {
		switch {
		case o.Missing:
			log.Debug().Str("file", o.Path).Msg("Tree census file missing, skipped")
		case o.Err != nil:
			log.Warn().Err(o.Err).Str("file", o.Path).Msg("Tree census file unreadable, skipped")
		default:
			log.Info().Str("file", o.Path).Int("trees", o.Loaded).Msg("Tree census file loaded")
		}
	}
	if err != nil {
		return err
	}
	log.Info().Int("trees", len(trees)).Msg("Tree layers merged")

	log.Info().Str("path", cfg.Schools.Path).Msg("Loading schools")
	schools, err := LoadSchools(cfg.Schools)
	if err != nil {
		return err
	}
	log.Info().Int("schools", len(schools)).Msg("School layer normalized")

	log.Info().Str("path", cfg.DEM).Msg("Clipping elevation raster")
	grid, err := raster.Open(cfg.DEM)
	if err != nil {
		return err
	}

	// Wards move into the raster CRS; the raster itself is never
	// reprojected, so elevation values are not resampled.
	toRaster, err := geo.NewTransform(config.WGS84Proj4, grid.Proj4)
	if err != nil {
		return &raster.RasterError{Path: cfg.DEM, Err: err}
	}

	wardGeoms := make(map[int]*geos.Geom, len(wards))
	repaired := make([]*geos.Geom, 0, len(wards))
	for _, w := range wards {
		g, err := geo.TransformGeom(w.Geom, toRaster)
		if err != nil {
			return fmt.Errorf("reproject ward %d into raster CRS: %w", w.ID, err)
		}
		wardGeoms[w.ID] = g
		// Zero-distance buffer repairs self-intersections that would
		// otherwise break the union mask.
		repaired = append(repaired, g.Buffer(0, 0))
	}

	union := geo.UnionAll(repaired)
	clipped, err := raster.Clip(grid, union)
	if err != nil {
		return &raster.RasterError{Path: cfg.DEM, Err: err}
	}

	demOut := filepath.Join(cfg.ProcessedDir, "dem_clipped.tif")
	if err := raster.Write(demOut, clipped); err != nil {
		return err
	}
	log.Info().
		Str("path", demOut).
		Int("width", clipped.Width).
		Int("height", clipped.Height).
		Msg("Elevation raster clipped")

	log.Info().Int("workers", cfg.Workers).Msg("Computing average elevation per ward")
	elevs := raster.ZonalMeans(clipped, wardGeoms, cfg.Workers)
	covered := 0
	for _, w := range wards {
		w.AvgElev = elevs[w.ID]
		if w.AvgElev != nil {
			covered++
		}
	}
	log.Info().Int("covered", covered).Int("wards", len(wards)).Msg("Zonal statistics done")

	log.Info().Msg("Joining points to wards")
	agg := JoinPoints(wards, trees, schools)
	for _, w := range wards {
		w.NumSchools = agg.SchoolCounts[w.ID]
		w.TreeDist = agg.TreeCounts[w.ID]
	}
	log.Info().
		Int("trees_outside", agg.TreesOutside).
		Int("schools_outside", agg.SchoolsOutside).
		Int("ambiguous", agg.Ambiguous).
		Msg("Spatial join done")

	log.Info().Str("dir", cfg.ProcessedDir).Msg("Writing outputs")
	if err := Export(cfg.ProcessedDir, wards, trees, schools, cfg.SimplifyTolerance); err != nil {
		return err
	}

	log.Info().Msg("Preprocessing complete")
	return nil
}
