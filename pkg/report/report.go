// Package report summarizes accuracy-test error logs.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/teslashibe/go-gaze/pkg/aggregate"
)

// ErrNoData is returned when a log holds no error values.
var ErrNoData = errors.New("report: no error values")

// Load reads one error value per line. Blank lines and lines starting with
// # are skipped.
func Load(r io.Reader) ([]float64, error) {
	var out []float64
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("report: line %d: %w", line, err)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	return out, nil
}

// LoadFile reads the error log at path.
func LoadFile(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Summary describes the distribution of test errors in pixels.
type Summary struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	Max    float64 `json:"max"`
}

func (s Summary) String() string {
	return fmt.Sprintf("n=%d mean=%.1f sd=%.1f median=%.1f p90=%.1f max=%.1f",
		s.N, s.Mean, s.StdDev, s.Median, s.P90, s.Max)
}

// Summarize computes the summary. Quantiles are empirical: they are always
// one of the observed values. StdDev is the sample standard deviation and
// is zero for a single value.
func Summarize(errs []float64) (Summary, error) {
	if len(errs) == 0 {
		return Summary{}, ErrNoData
	}
	sorted := append([]float64(nil), errs...)
	sort.Float64s(sorted)

	mean, sd := stat.MeanStdDev(sorted, nil)
	if len(sorted) == 1 || math.IsNaN(sd) {
		sd = 0
	}
	return Summary{
		N:      len(sorted),
		Mean:   mean,
		StdDev: sd,
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:    stat.Quantile(0.9, stat.Empirical, sorted, nil),
		Max:    floats.Max(sorted),
	}, nil
}

// Bin is one histogram bin, closed on the left.
type Bin struct {
	Lo    float64 `json:"lo"`
	Hi    float64 `json:"hi"`
	Count int     `json:"count"`
}

// Histogram bins errs with the same automatic bin count used for
// calibration samples.
func Histogram(errs []float64) ([]Bin, error) {
	if len(errs) == 0 {
		return nil, ErrNoData
	}
	sorted := append([]float64(nil), errs...)
	sort.Float64s(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		return []Bin{{Lo: lo, Hi: hi, Count: len(sorted)}}, nil
	}

	n := aggregate.Bins(sorted)
	edges := floats.Span(make([]float64, n+1), lo, hi)
	dividers := append([]float64(nil), edges...)
	dividers[n] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, sorted, nil)

	bins := make([]Bin, n)
	for i := range bins {
		bins[i] = Bin{Lo: edges[i], Hi: edges[i+1], Count: int(counts[i])}
	}
	return bins, nil
}

// PlotHistogram renders a histogram of errs to path. The image format
// follows the file extension (png, svg, pdf).
func PlotHistogram(errs []float64, title, path string) error {
	bins, err := Histogram(errs)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Error (px)"
	p.Y.Label.Text = "Frames"

	h, err := plotter.NewHist(plotter.Values(errs), len(bins))
	if err != nil {
		return fmt.Errorf("report: histogram: %w", err)
	}
	p.Add(h)

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("report: save %s: %w", path, err)
	}
	return nil
}
