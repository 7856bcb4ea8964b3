// Command gridinfo prints the header and value statistics of Esri ASCII
// grids, such as the rasters and mosaics written by noaagrids.
//
// Usage:
//
//	go run ./cmd/gridinfo NOAA_grids_mosaic/*.asc
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/couchcryptid/noaa-grids-etl/internal/raster"
)

func main() {
	inches := flag.Bool("inches", false, "report statistics in inches instead of thousandths")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: gridinfo [-inches] file.asc ...")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	failed := false
	for _, path := range flag.Args() {
		if err := describe(os.Stdout, path, *inches); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func describe(w io.Writer, path string, inches bool) error {
	g, err := raster.Read(path)
	if err != nil {
		return err
	}
	left, bottom, right, top := g.Bounds()
	stats := g.Stats()

	scale, unit := 1.0, "1/1000 in"
	if inches {
		scale, unit = 1.0/1000, "in"
	}

	fmt.Fprintf(w, "%s\n", filepath.Base(path))
	fmt.Fprintf(w, "  size:      %d x %d (%s)\n", g.Cols, g.Rows, g.DataType)
	fmt.Fprintf(w, "  cellsize:  %g\n", g.Transform.DX)
	fmt.Fprintf(w, "  bounds:    %g %g %g %g\n", left, bottom, right, top)
	if g.HasNoData {
		fmt.Fprintf(w, "  nodata:    %g\n", g.NoData)
	}
	if g.CRS != "" {
		fmt.Fprintf(w, "  crs:       %s\n", g.CRS)
	}
	if stats.Valid == 0 {
		fmt.Fprintln(w, "  no valid cells")
		return nil
	}
	fmt.Fprintf(w, "  valid:     %d of %d\n", stats.Valid, len(g.Data))
	fmt.Fprintf(w, "  min/max:   %g / %g %s\n", stats.Min*scale, stats.Max*scale, unit)
	fmt.Fprintf(w, "  mean:      %.3f %s\n", stats.Mean*scale, unit)
	return nil
}
