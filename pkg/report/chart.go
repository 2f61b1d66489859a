package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// ChartHistogram writes an interactive HTML bar chart of the error
// histogram to w.
func ChartHistogram(w io.Writer, errs []float64, title string) error {
	bins, err := Histogram(errs)
	if err != nil {
		return err
	}
	s, err := Summarize(errs)
	if err != nil {
		return err
	}

	x := make([]string, len(bins))
	y := make([]opts.BarData, len(bins))
	for i, b := range bins {
		x[i] = fmt.Sprintf("%.0f-%.0f", b.Lo, b.Hi)
		y[i] = opts.BarData{Value: b.Count}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("n=%d mean=%.1fpx median=%.1fpx p90=%.1fpx", s.N, s.Mean, s.Median, s.P90),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Error (px)", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Frames"}),
	)
	bar.SetXAxis(x).AddSeries("errors", y,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	if err := bar.Render(w); err != nil {
		return fmt.Errorf("report: render chart: %w", err)
	}
	return nil
}
