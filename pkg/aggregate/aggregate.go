// Package aggregate reduces the noisy ratio samples collected at one
// calibration point to a single representative value.
//
// Each axis is histogrammed with an automatically chosen bin width and the
// midpoint of the densest bin is returned. Blinks, saccades and detector
// glitches land in sparse bins and do not drag the result the way they
// would drag a plain mean.
package aggregate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// maxBins caps the bin count for pathological spreads (tiny IQR, huge range).
const maxBins = 1000

// Aggregate returns the representative ratio of a calibration point's
// samples, one axis at a time.
func Aggregate(samples []gaze.Ratio) (gaze.Ratio, error) {
	if len(samples) == 0 {
		return gaze.Ratio{}, gaze.ErrEmptySampleSet
	}

	hs := make([]float64, len(samples))
	vs := make([]float64, len(samples))
	for i, s := range samples {
		hs[i] = s.H
		vs[i] = s.V
	}

	h, err := Mode(hs)
	if err != nil {
		return gaze.Ratio{}, err
	}
	v, err := Mode(vs)
	if err != nil {
		return gaze.Ratio{}, err
	}
	return gaze.Ratio{H: h, V: v}, nil
}

// Mode returns the midpoint of the most populated histogram bin of series.
// Ties go to the lowest bin. NaN values are ignored.
func Mode(series []float64) (float64, error) {
	sorted := make([]float64, 0, len(series))
	for _, v := range series {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return 0, gaze.ErrEmptySampleSet
	}
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		return lo, nil
	}

	n := Bins(sorted)
	edges := floats.Span(make([]float64, n+1), lo, hi)

	// stat.Histogram wants the top divider strictly above the maximum; the
	// last bin is closed on the right.
	dividers := append([]float64(nil), edges...)
	dividers[n] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, sorted, nil)
	best := floats.MaxIdx(counts)
	return (edges[best] + edges[best+1]) / 2, nil
}

// Bins returns the automatic bin count for sorted data: the smaller of the
// Freedman-Diaconis and Sturges bin widths, falling back to Sturges when
// the interquartile range is zero.
func Bins(sorted []float64) int {
	n := len(sorted)
	if n < 2 {
		return 1
	}
	span := sorted[n-1] - sorted[0]
	if span <= 0 {
		return 1
	}

	width := span / (math.Log2(float64(n)) + 1)
	iqr := percentile(sorted, 0.75) - percentile(sorted, 0.25)
	if iqr > 0 {
		fd := 2 * iqr * math.Pow(float64(n), -1.0/3.0)
		width = math.Min(width, fd)
	}

	bins := int(math.Ceil(span / width))
	if bins < 1 {
		bins = 1
	}
	if bins > maxBins {
		bins = maxBins
	}
	return bins
}

// percentile interpolates between the closest ranks at h = (n-1)p
// (Hyndman-Fan type 7). stat.Quantile's LinInterp is type 4 and gives a
// wider IQR on small samples.
func percentile(sorted []float64, p float64) float64 {
	h := float64(len(sorted)-1) * p
	lo := int(math.Floor(h))
	if lo+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}
