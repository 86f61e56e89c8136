// qcplot renders the processed ward, school and tree layers to a single
// image for quick visual inspection of the pipeline output. Nothing
// downstream consumes the image.
package main

import (
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"path/filepath"

	"github.com/chai2010/webp"
	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"

	"github.com/civickit/wardatlas/internal/geo"
	"github.com/civickit/wardatlas/internal/logger"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ProcessedDir string `short:"d" long:"processed-dir" env:"PROCESSED_DIR" description:"Pipeline output directory" default:"data/processed"`
	Output       string `short:"o" long:"out"           description:"Output image path" default:"qc.webp"`
	Size         int    `short:"s" long:"size"          description:"Output image size in pixels" default:"2048"`
	Sample       int    `short:"n" long:"sample"        description:"Maximum number of tree points to draw" default:"2000"`
}

var (
	wardColor   = color.RGBA{0, 0, 0, 255}
	schoolColor = color.RGBA{220, 30, 30, 255}
	treeColor   = color.RGBA{30, 160, 60, 255}
)

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	wards, err := geo.ReadFile(filepath.Join(opts.ProcessedDir, "wards.geojson"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read ward layer")
	}
	trees, err := geo.ReadFile(filepath.Join(opts.ProcessedDir, "trees.geojson"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read tree layer")
	}
	schools, err := geo.ReadFile(filepath.Join(opts.ProcessedDir, "schools.geojson"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read school layer")
	}

	var rings [][][]float64
	for _, f := range wards.Features {
		rings = append(rings, featureRings(f)...)
	}
	if len(rings) == 0 {
		log.Fatal().Msg("Ward layer has no polygon rings to plot")
	}

	proj := newPlotProjection(rings, 2*opts.Size)

	// Render supersampled, then scale down for smoother edges.
	canvas := image.NewRGBA(image.Rect(0, 0, 2*opts.Size, 2*opts.Size))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	for _, ring := range rings {
		drawRing(canvas, proj, ring, wardColor)
	}

	step := 1
	if opts.Sample > 0 && len(trees.Features) > opts.Sample {
		step = len(trees.Features) / opts.Sample
	}
	for i := 0; i < len(trees.Features); i += step {
		if x, y, ok := featurePoint(trees.Features[i]); ok {
			drawMarker(canvas, proj, x, y, 1, treeColor)
		}
	}

	for _, f := range schools.Features {
		if x, y, ok := featurePoint(f); ok {
			drawMarker(canvas, proj, x, y, 4, schoolColor)
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, opts.Size, opts.Size))
	xdraw.ApproxBiLinear.Scale(out, out.Bounds(), canvas, canvas.Bounds(), xdraw.Src, nil)

	f, err := os.Create(opts.Output)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output file")
	}
	defer func() { _ = f.Close() }()

	if err := webp.Encode(f, out, &webp.Options{Quality: 90}); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode image")
	}

	log.Info().
		Str("path", opts.Output).
		Int("wards", len(wards.Features)).
		Int("schools", len(schools.Features)).
		Int("trees_drawn", (len(trees.Features)+step-1)/step).
		Msg("QC plot written")
}

// plotProjection maps lon/lat onto pixel coordinates with a uniform scale.
type plotProjection struct {
	minX, maxY float64
	scale      float64
	margin     float64
}

func newPlotProjection(rings [][][]float64, size int) *plotProjection {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, ring := range rings {
		for _, c := range ring {
			minX = math.Min(minX, c[0])
			maxX = math.Max(maxX, c[0])
			minY = math.Min(minY, c[1])
			maxY = math.Max(maxY, c[1])
		}
	}

	margin := float64(size) * 0.02
	span := math.Max(maxX-minX, maxY-minY)
	if span <= 0 {
		span = 1
	}
	return &plotProjection{
		minX:   minX,
		maxY:   maxY,
		scale:  (float64(size) - 2*margin) / span,
		margin: margin,
	}
}

func (p *plotProjection) px(x, y float64) (int, int) {
	// north up: larger latitude is a smaller row
	return int(p.margin + (x-p.minX)*p.scale), int(p.margin + (p.maxY-y)*p.scale)
}

func drawRing(img *image.RGBA, p *plotProjection, ring [][]float64, c color.RGBA) {
	for i := 1; i < len(ring); i++ {
		x0, y0 := p.px(ring[i-1][0], ring[i-1][1])
		x1, y1 := p.px(ring[i][0], ring[i][1])
		drawLine(img, x0, y0, x1, y1, c)
	}
}

func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	steps := int(math.Max(math.Abs(float64(x1-x0)), math.Abs(float64(y1-y0))))
	if steps == 0 {
		img.SetRGBA(x0, y0, c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := x0 + int(math.Round(t*float64(x1-x0)))
		y := y0 + int(math.Round(t*float64(y1-y0)))
		img.SetRGBA(x, y, c)
	}
}

func drawMarker(img *image.RGBA, p *plotProjection, lon, lat float64, r int, c color.RGBA) {
	cx, cy := p.px(lon, lat)
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			img.SetRGBA(cx+dx, cy+dy, c)
		}
	}
}

// featureRings extracts every linear ring of a Polygon or MultiPolygon
// feature; other geometry types yield nothing.
func featureRings(f geo.Feature) [][][]float64 {
	switch f.GeometryType() {
	case "Polygon":
		var g struct {
			Coordinates [][][]float64 `json:"coordinates"`
		}
		if err := json.Unmarshal(f.Geometry, &g); err != nil {
			return nil
		}
		return g.Coordinates
	case "MultiPolygon":
		var g struct {
			Coordinates [][][][]float64 `json:"coordinates"`
		}
		if err := json.Unmarshal(f.Geometry, &g); err != nil {
			return nil
		}
		var rings [][][]float64
		for _, poly := range g.Coordinates {
			rings = append(rings, poly...)
		}
		return rings
	default:
		return nil
	}
}

func featurePoint(f geo.Feature) (float64, float64, bool) {
	if f.GeometryType() != "Point" {
		return 0, 0, false
	}
	var g struct {
		Coordinates []float64 `json:"coordinates"`
	}
	if err := json.Unmarshal(f.Geometry, &g); err != nil || len(g.Coordinates) < 2 {
		return 0, 0, false
	}
	return g.Coordinates[0], g.Coordinates[1], true
}
