package raster

import (
	"errors"

	"github.com/lukeroth/gdal"
)

// Open reads the first band of a GeoTIFF into memory and releases the file
// handle before returning. The raster must be georeferenced, carry a nodata
// value and be north-up.
func Open(path string) (*Grid, error) {
	ds, err := gdal.Open(path, gdal.ReadOnly)
	if err != nil {
		return nil, &RasterError{Path: path, Err: err}
	}
	defer ds.Close()

	wkt := ds.Projection()
	if wkt == "" {
		return nil, &RasterError{Path: path, Err: errors.New("no CRS metadata")}
	}

	sr := gdal.CreateSpatialReference(wkt)
	proj4, err := sr.ToProj4()
	if err != nil {
		return nil, &RasterError{Path: path, Err: err}
	}

	gt := ds.GeoTransform()
	if gt[2] != 0 || gt[4] != 0 {
		return nil, &RasterError{Path: path, Err: errors.New("rotated rasters are not supported")}
	}

	width := ds.RasterXSize()
	height := ds.RasterYSize()
	band := ds.RasterBand(1)

	nodata, hasNodata := band.NoDataValue()
	if !hasNodata {
		return nil, &RasterError{Path: path, Err: errors.New("no nodata value")}
	}

	data := make([]float64, width*height)
	if err := band.IO(gdal.Read, 0, 0, width, height, data, width, height, 0, 0); err != nil {
		return nil, &RasterError{Path: path, Err: err}
	}

	return &Grid{
		Data:      data,
		Width:     width,
		Height:    height,
		Transform: gt,
		NoData:    nodata,
		WKT:       wkt,
		Proj4:     proj4,
		DataType:  band.RasterDataType(),
	}, nil
}

// Write stores the grid as a GeoTIFF, preserving the source band data type.
// The file is replaced wholesale.
func Write(path string, g *Grid) error {
	driver, err := gdal.GetDriverByName("GTiff")
	if err != nil {
		return &RasterError{Path: path, Err: err}
	}

	ds := driver.Create(path, g.Width, g.Height, 1, g.DataType, nil)
	defer ds.Close()

	if err := ds.SetGeoTransform(g.Transform); err != nil {
		return &RasterError{Path: path, Err: err}
	}
	if err := ds.SetProjection(g.WKT); err != nil {
		return &RasterError{Path: path, Err: err}
	}

	band := ds.RasterBand(1)
	if err := band.SetNoDataValue(g.NoData); err != nil {
		return &RasterError{Path: path, Err: err}
	}
	if err := band.IO(gdal.Write, 0, 0, g.Width, g.Height, g.Data, g.Width, g.Height, 0, 0); err != nil {
		return &RasterError{Path: path, Err: err}
	}
	return nil
}
