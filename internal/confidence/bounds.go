// Package confidence derives plus and minus one-standard-deviation bounds of
// the 100-year depth from the published 90% confidence limits.
package confidence

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/couchcryptid/noaa-grids-etl/internal/domain"
	"github.com/couchcryptid/noaa-grids-etl/internal/raster"
)

const (
	// z90 is the standard-normal quantile of the published 90% limits.
	z90 = 1.645

	minusP = 0.16
	plusP  = 0.84

	// scale converts stored thousandths of an inch to inches.
	scale = 1000.0
)

// ComputeBounds fits a log-normal to each cell of base (median) and its
// upper and lower 90% limits, taking the wider of the two implied spreads,
// and returns the 84th (plus) and 16th (minus) percentiles in the stored
// units. Cells that are nodata or non-positive in any input are NaN in both
// outputs. Outputs are float32 with NaN nodata and base georeferencing.
func ComputeBounds(base, upper, lower *raster.Grid) (plus, minus *raster.Grid, err error) {
	if !base.SameGeometry(upper) || !base.SameGeometry(lower) {
		return nil, nil, fmt.Errorf("%w: base %dx%d, upper %dx%d, lower %dx%d or transforms differ",
			domain.ErrPreconditionMismatch, base.Rows, base.Cols, upper.Rows, upper.Cols, lower.Rows, lower.Cols)
	}

	plusData := make([]float64, len(base.Data))
	minusData := make([]float64, len(base.Data))
	for i := range base.Data {
		b := depth(base, base.Data[i])
		u := depth(upper, upper.Data[i])
		l := depth(lower, lower.Data[i])

		mu := math.Log(b)
		sigma := math.Max((mu-math.Log(l))/z90, (math.Log(u)-mu)/z90)
		if math.IsNaN(mu) || math.IsNaN(sigma) {
			plusData[i], minusData[i] = math.NaN(), math.NaN()
			continue
		}
		dist := distuv.LogNormal{Mu: mu, Sigma: sigma}
		plusData[i] = math.Round(dist.Quantile(plusP) * scale)
		minusData[i] = math.Round(dist.Quantile(minusP) * scale)
	}

	return output(base, plusData), output(base, minusData), nil
}

// depth converts a stored cell to inches, NaN for nodata or non-positive cells.
func depth(g *raster.Grid, v float64) float64 {
	if !g.Valid(v) || v <= 0 {
		return math.NaN()
	}
	return v / scale
}

func output(base *raster.Grid, data []float64) *raster.Grid {
	g := base.WithData(data)
	g.DataType = raster.Float32
	g.HasNoData = true
	g.NoData = math.NaN()
	return g
}
