// Gaze Report - summarize the accuracy test errors of a tracking run
// Reads a text error log (one error per line) or a session from the SQLite
// error store, prints summary statistics and a histogram, and optionally
// plots the histogram to a PNG.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/teslashibe/go-gaze/pkg/errlog"
	"github.com/teslashibe/go-gaze/pkg/report"
)

func main() {
	sqlitePath := flag.String("sqlite", "", "SQLite error store (instead of a text log)")
	session := flag.String("session", "", "Session id in the SQLite store (default: newest)")
	list := flag.Bool("list", false, "List the sessions in the SQLite store and exit")
	plotPath := flag.String("plot", "", "Write a histogram PNG to this path")
	chartPath := flag.String("chart", "", "Write an interactive HTML histogram to this path")
	asJSON := flag.Bool("json", false, "Print the summary as JSON")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [error-log.txt]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	var (
		errs  []float64
		title string
		err   error
	)
	switch {
	case *sqlitePath != "":
		errs, title, err = fromStore(*sqlitePath, *session, *list)
	case flag.NArg() == 1:
		title = flag.Arg(0)
		errs, err = report.LoadFile(title)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	if errs == nil {
		return
	}

	summary, err := report.Summarize(errs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %s: %v\n", title, err)
		os.Exit(1)
	}
	bins, err := report.Histogram(errs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %s: %v\n", title, err)
		os.Exit(1)
	}

	if *asJSON {
		out := struct {
			Source    string         `json:"source"`
			Summary   report.Summary `json:"summary"`
			Histogram []report.Bin   `json:"histogram"`
		}{title, summary, bins}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Printf("📊 %s\n", title)
		fmt.Println(summary)
		printHistogram(bins)
	}

	if *plotPath != "" {
		if err := report.PlotHistogram(errs, "Gaze error: "+title, *plotPath); err != nil {
			fmt.Fprintf(os.Stderr, "❌ plot: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "✅ histogram written to %s\n", *plotPath)
	}
	if *chartPath != "" {
		if err := writeChart(errs, title, *chartPath); err != nil {
			fmt.Fprintf(os.Stderr, "❌ chart: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "✅ chart written to %s\n", *chartPath)
	}
}

func writeChart(errs []float64, title, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.ChartHistogram(f, errs, "Gaze error: "+title); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// fromStore loads one session's errors, or lists sessions and returns nil.
func fromStore(path, id string, list bool) ([]float64, string, error) {
	store, err := errlog.OpenStore(path)
	if err != nil {
		return nil, "", err
	}
	defer store.Close()

	sessions, err := store.Sessions()
	if err != nil {
		return nil, "", err
	}
	if list {
		for _, s := range sessions {
			mode := "raw"
			if s.Stabilized {
				mode = "stab"
			}
			fmt.Printf("%s  %s  %-6s %-4s %d records\n",
				s.ID, s.StartedAt.Local().Format(time.DateTime), s.Prefix, mode, s.Records)
		}
		return nil, "", nil
	}
	if id == "" {
		if len(sessions) == 0 {
			return nil, "", fmt.Errorf("%s: no test sessions", path)
		}
		id = sessions[0].ID
	}
	errs, err := store.Errors(id)
	if err != nil {
		return nil, "", err
	}
	return errs, "session " + id, nil
}

func printHistogram(bins []report.Bin) {
	most := 0
	for _, b := range bins {
		most = max(most, b.Count)
	}
	for _, b := range bins {
		bar := 0
		if most > 0 {
			bar = b.Count * 40 / most
		}
		fmt.Printf("%8.1f - %8.1f | %-40s %d\n", b.Lo, b.Hi, strings.Repeat("#", bar), b.Count)
	}
}
