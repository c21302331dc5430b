package report

import (
	"fmt"
	"io"
	"math"

	"github.com/DataDog/sketches-go/ddsketch"

	"netspeedlogger/storage"
)

// quantileAccuracy is the relative accuracy of the quartiles.
const quantileAccuracy = 0.001

// Stats describes one numeric column. Missing values are skipped, so Count
// may differ between columns. Fields are NaN when they cannot be computed.
type Stats struct {
	Count int
	Mean  float64
	Std   float64 // sample standard deviation
	Min   float64
	Q25   float64
	Q50   float64
	Q75   float64
	Max   float64
}

// Describe computes Stats for values. Quartiles come from a DDSketch and
// are exact to within quantileAccuracy relative error; everything else
// is exact.
func Describe(values []float64) (Stats, error) {
	nan := math.NaN()
	s := Stats{Mean: nan, Std: nan, Min: nan, Q25: nan, Q50: nan, Q75: nan, Max: nan}
	if len(values) == 0 {
		return s, nil
	}

	sketch, err := ddsketch.NewDefaultDDSketch(quantileAccuracy)
	if err != nil {
		return s, fmt.Errorf("create sketch: %w", err)
	}

	var sum float64
	s.Min, s.Max = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if err := sketch.Add(v); err != nil {
			return s, fmt.Errorf("add %v to sketch: %w", v, err)
		}
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Count = len(values)
	s.Mean = sum / float64(s.Count)

	if s.Count > 1 {
		var sq float64
		for _, v := range values {
			d := v - s.Mean
			sq += d * d
		}
		s.Std = math.Sqrt(sq / float64(s.Count-1))
	}

	qs, err := sketch.GetValuesAtQuantiles([]float64{0.25, 0.50, 0.75})
	if err != nil {
		return s, fmt.Errorf("read quartiles: %w", err)
	}
	// Clamp into the observed range, the sketch returns bucket midpoints.
	for i := range qs {
		qs[i] = math.Max(s.Min, math.Min(s.Max, qs[i]))
	}
	s.Q25, s.Q50, s.Q75 = qs[0], qs[1], qs[2]
	return s, nil
}

// Column is a named series for Summary.
type Column struct {
	Name   string
	Values []float64
}

// SummaryColumns extracts the columns `summary` describes: download and
// upload in Mb/s and ping in ms. Records without ping are skipped for the
// ping column only.
func SummaryColumns(recs []storage.Record) []Column {
	down := Column{Name: "Download Speed (Mb/s)"}
	up := Column{Name: "Upload Speed (Mb/s)"}
	ping := Column{Name: "Ping (ms)"}
	for _, r := range recs {
		down.Values = append(down.Values, Mbps(r.DownloadSpeed))
		up.Values = append(up.Values, Mbps(r.UploadSpeed))
		if r.Ping != nil {
			ping.Values = append(ping.Values, *r.Ping)
		}
	}
	return []Column{down, up, ping}
}

// Summary writes a describe()-style table: one row per statistic, one
// column per series.
func Summary(w io.Writer, cols []Column) error {
	stats := make([]Stats, len(cols))
	header := []string{""}
	for i, c := range cols {
		st, err := Describe(c.Values)
		if err != nil {
			return fmt.Errorf("describe %s: %w", c.Name, err)
		}
		stats[i] = st
		header = append(header, c.Name)
	}

	rowsOf := []struct {
		name string
		get  func(Stats) float64
	}{
		{"count", func(s Stats) float64 { return float64(s.Count) }},
		{"mean", func(s Stats) float64 { return s.Mean }},
		{"std", func(s Stats) float64 { return s.Std }},
		{"min", func(s Stats) float64 { return s.Min }},
		{"25%", func(s Stats) float64 { return s.Q25 }},
		{"50%", func(s Stats) float64 { return s.Q50 }},
		{"75%", func(s Stats) float64 { return s.Q75 }},
		{"max", func(s Stats) float64 { return s.Max }},
	}
	rows := make([][]string, 0, len(rowsOf))
	for _, r := range rowsOf {
		row := []string{r.name}
		for _, st := range stats {
			row = append(row, formatStat(r.get(st)))
		}
		rows = append(rows, row)
	}
	Markdown(w, header, rows)
	return nil
}

func formatStat(f float64) string {
	if math.IsNaN(f) {
		return "nan"
	}
	return FormatFloat(f)
}
