package contacts

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// neutral computes the per-frame baseline capacitance used as the
// zero-point for peak detection (spec.md §4.E step 1), plus the
// configured offset.
func neutral(values []float32, p Params) float32 {
	var base float32
	switch p.Neutral {
	case NeutralAverage:
		base = average(values)
	case NeutralConstant:
		base = 0
	default:
		base = modeBaseline(values)
	}
	return base + p.NeutralValue
}

func average(values []float32) float32 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return float32(sum / float64(len(values)))
}

// modeBaseline bins values into ModeBins equal-width bins over [0,1] and
// returns the midpoint of the bin with the highest count. Ties are
// broken toward the lowest-indexed (smallest-value) bin.
func modeBaseline(values []float32) float32 {
	x := make([]float64, len(values))
	for i, v := range values {
		x[i] = float64(v)
	}
	// stat.Histogram requires sorted data lying below the last divider;
	// nudging that divider just past 1 keeps a value of 1 in the top bin.
	sort.Float64s(x)

	dividers := make([]float64, ModeBins+1)
	for i := range dividers {
		dividers[i] = float64(i) / float64(ModeBins)
	}
	dividers[ModeBins] = math.Nextafter(1, 2)

	counts := stat.Histogram(nil, dividers, x, nil)

	best := 0
	for i := 1; i < len(counts); i++ {
		if counts[i] > counts[best] {
			best = i
		}
	}

	binWidth := 1.0 / float64(ModeBins)
	mid := (float64(best) + 0.5) * binWidth
	return float32(mid)
}
