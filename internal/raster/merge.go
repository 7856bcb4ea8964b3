package raster

import (
	"errors"
	"fmt"
	"math"
)

// ErrIncompatible is returned when grids cannot share one output lattice.
var ErrIncompatible = errors.New("incompatible grids")

// Conforms reports whether o can share g's output lattice: same cell size
// and same reference system.
func (g *Grid) Conforms(o *Grid) error {
	dx, dy := g.Transform.DX, g.Transform.DY
	if !sameRes(o.Transform.DX, dx) || !sameRes(o.Transform.DY, dy) {
		return fmt.Errorf("%w: cell size %gx%g, want %gx%g",
			ErrIncompatible, o.Transform.DX, -o.Transform.DY, dx, -dy)
	}
	if o.CRS != g.CRS {
		return fmt.Errorf("%w: different CRS", ErrIncompatible)
	}
	return nil
}

// MergeMax composites grids onto the union of their footprints. Each output
// cell takes the maximum valid value among the sources covering it; cells no
// source covers with data are nodata. Output metadata comes from the first
// grid with the computed transform and shape substituted.
func MergeMax(grids []*Grid) (*Grid, error) {
	if len(grids) == 0 {
		return nil, fmt.Errorf("merge: %w: no grids", ErrIncompatible)
	}
	tmpl := grids[0]
	dx, dy := tmpl.Transform.DX, tmpl.Transform.DY

	left, bottom, right, top := tmpl.Bounds()
	for i, g := range grids[1:] {
		if err := tmpl.Conforms(g); err != nil {
			return nil, fmt.Errorf("merge: grid %d: %w", i+1, err)
		}
		l, b, r, t := g.Bounds()
		left = math.Min(left, l)
		bottom = math.Min(bottom, b)
		right = math.Max(right, r)
		top = math.Max(top, t)
	}

	cols := int(math.Round((right - left) / dx))
	rows := int(math.Round((bottom - top) / dy))
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = math.NaN()
	}

	for _, g := range grids {
		colOff := int(math.Round((g.Transform.X0 - left) / dx))
		rowOff := int(math.Round((g.Transform.Y0 - top) / dy))
		for r := 0; r < g.Rows; r++ {
			orow := r + rowOff
			if orow < 0 || orow >= rows {
				continue
			}
			for c := 0; c < g.Cols; c++ {
				v := g.Data[r*g.Cols+c]
				if !g.Valid(v) {
					continue
				}
				ocol := c + colOff
				if ocol < 0 || ocol >= cols {
					continue
				}
				idx := orow*cols + ocol
				if cur := data[idx]; math.IsNaN(cur) || v > cur {
					data[idx] = v
				}
			}
		}
	}

	if tmpl.HasNoData {
		for i, v := range data {
			if math.IsNaN(v) {
				data[i] = tmpl.NoData
			}
		}
	}

	out := tmpl.WithData(data)
	out.Rows, out.Cols = rows, cols
	out.Transform = Transform{X0: left, Y0: top, DX: dx, DY: dy}
	return out, nil
}
