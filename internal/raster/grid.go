// Package raster reads, writes and merges the single-band Esri ASCII grids
// (".asc" with an optional ".prj" sidecar) published by HDSC.
package raster

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DataType is the cell encoding written to disk.
type DataType int

const (
	Int32 DataType = iota
	Float32
)

func (t DataType) String() string {
	if t == Float32 {
		return "float32"
	}
	return "int32"
}

// Transform is a north-up affine pixel-to-coordinate transform. X0/Y0 is the
// outer corner of the top-left cell; DY is negative.
type Transform struct {
	X0, Y0 float64
	DX, DY float64
}

// Coord returns the coordinate of the top-left corner of cell (row, col).
func (t Transform) Coord(row, col int) (x, y float64) {
	return t.X0 + float64(col)*t.DX, t.Y0 + float64(row)*t.DY
}

// Equal compares transforms to within a small fraction of a cell.
func (t Transform) Equal(o Transform) bool {
	tol := math.Abs(t.DX) * 1e-6
	return math.Abs(t.X0-o.X0) <= tol && math.Abs(t.Y0-o.Y0) <= tol &&
		sameRes(t.DX, o.DX) && sameRes(t.DY, o.DY)
}

func sameRes(a, b float64) bool {
	return math.Abs(a-b) <= math.Abs(a)*1e-9
}

// Grid is a georeferenced single-band raster held row-major in memory.
// A Grid is not modified after it is read or built; derived rasters are new
// values.
type Grid struct {
	Rows, Cols int
	Data       []float64
	Transform  Transform
	CRS        string // WKT from the .prj sidecar, empty when absent

	HasNoData bool
	NoData    float64
	DataType  DataType
}

// At returns the value of cell (row, col).
func (g *Grid) At(row, col int) float64 {
	return g.Data[row*g.Cols+col]
}

// Valid reports whether v holds data under this grid's nodata convention.
func (g *Grid) Valid(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	return !(g.HasNoData && v == g.NoData)
}

// Bounds returns left, bottom, right, top in CRS units.
func (g *Grid) Bounds() (left, bottom, right, top float64) {
	left, top = g.Transform.X0, g.Transform.Y0
	right = left + float64(g.Cols)*g.Transform.DX
	bottom = top + float64(g.Rows)*g.Transform.DY
	return left, bottom, right, top
}

// SameGeometry reports whether o has the same shape and transform as g.
func (g *Grid) SameGeometry(o *Grid) bool {
	return g.Rows == o.Rows && g.Cols == o.Cols && g.Transform.Equal(o.Transform)
}

// WithData returns a copy of g's metadata carrying data instead of g's cells.
func (g *Grid) WithData(data []float64) *Grid {
	out := *g
	out.Data = data
	return &out
}

// Stats summarises valid cells.
type Stats struct {
	Valid          int
	Min, Max, Mean float64
}

// Stats computes min, max and mean over valid cells. All fields are zero
// when the grid has no valid cell.
func (g *Grid) Stats() Stats {
	vals := make([]float64, 0, len(g.Data))
	for _, v := range g.Data {
		if g.Valid(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return Stats{}
	}
	return Stats{
		Valid: len(vals),
		Min:   floats.Min(vals),
		Max:   floats.Max(vals),
		Mean:  floats.Sum(vals) / float64(len(vals)),
	}
}
