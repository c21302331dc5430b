package report

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netspeedlogger/storage"
)

func ptr[T any](v T) *T { return &v }

func TestMbps(t *testing.T) {
	assert.Equal(t, 1.0, Mbps(1024*1024))
	assert.Equal(t, 0.0, Mbps(0))
}

func TestMarkdownLayout(t *testing.T) {
	var buf bytes.Buffer
	Markdown(&buf, []string{"Date Time", "Ping (ms)"}, [][]string{{"2024-01-01 10:00:00.000000", "12.300"}})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "|"))
	assert.Contains(t, lines[0], "Date Time")
	assert.Contains(t, lines[0], "Ping (ms)")
	assert.Regexp(t, `^\|-+\|-+\|$`, lines[1])
	assert.Contains(t, lines[2], "12.300")
}

func TestCell(t *testing.T) {
	assert.Equal(t, "", Cell(nil))
	assert.Equal(t, "1.500", Cell(1.5))
	assert.Equal(t, "42", Cell(int64(42)))
	assert.Equal(t, "abc", Cell([]byte("abc")))
	assert.Equal(t, "x", Cell("x"))
}

func TestRecordsShowsMissingValues(t *testing.T) {
	var buf bytes.Buffer
	Records(&buf, []storage.Record{
		{Timestamp: "2024-01-01 00:00:00.000000"},
		{Timestamp: "2024-01-01 01:00:00.000000", DownloadSpeed: 2, Ping: ptr(9.5), ServerHost: ptr("h:80"), ServerID: ptr("7")},
	})
	out := buf.String()
	assert.Contains(t, out, "download_speed")
	assert.Contains(t, out, "None")
	assert.Contains(t, out, "h:80")
	assert.Contains(t, out, "9.500")
}

func TestTableRendersRows(t *testing.T) {
	var buf bytes.Buffer
	Table(&buf, storage.Table{
		Exists:  true,
		Columns: []string{"Server ID", "kB Sent"},
		Rows:    [][]any{{"4242", int64(23552)}, {nil, int64(0)}},
	})
	assert.Contains(t, buf.String(), "23552")
	assert.Contains(t, buf.String(), "Server ID")
}

func TestDescribe(t *testing.T) {
	s, err := Describe([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	require.NoError(t, err)

	assert.Equal(t, 10, s.Count)
	assert.InDelta(t, 5.5, s.Mean, 1e-9)
	assert.InDelta(t, 3.0276503540974917, s.Std, 1e-9)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 10.0, s.Max)
	// approximate quartiles, close to the interpolated 3.25/5.5/7.75
	assert.InDelta(t, 3.25, s.Q25, 1)
	assert.InDelta(t, 5.5, s.Q50, 1)
	assert.InDelta(t, 7.75, s.Q75, 1)
	assert.LessOrEqual(t, s.Q25, s.Q50)
	assert.LessOrEqual(t, s.Q50, s.Q75)
}

func TestDescribeEdgeCases(t *testing.T) {
	empty, err := Describe(nil)
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
	assert.True(t, math.IsNaN(empty.Mean))

	one, err := Describe([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, 1, one.Count)
	assert.True(t, math.IsNaN(one.Std))
	assert.Equal(t, 0.0, one.Q50)
}

func TestSummarySkipsMissingPing(t *testing.T) {
	recs := []storage.Record{
		{DownloadSpeed: 1024 * 1024, UploadSpeed: 2 * 1024 * 1024, Ping: ptr(10.0)},
		{Timestamp: "degraded"},
	}
	cols := SummaryColumns(recs)
	require.Len(t, cols, 3)
	assert.Equal(t, []float64{1, 0}, cols[0].Values)
	assert.Equal(t, []float64{2, 0}, cols[1].Values)
	assert.Equal(t, []float64{10}, cols[2].Values)

	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, cols))
	out := buf.String()
	for _, row := range []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"} {
		assert.Contains(t, out, row)
	}
	assert.Contains(t, out, "nan") // ping std over one value
}

func TestChart(t *testing.T) {
	points := Chart([]storage.Record{
		{Timestamp: "2024-03-04 17:45:00.000000", DownloadSpeed: 3 * 1024 * 1024, Ping: ptr(5.0)},
		{Timestamp: "bad"},
	})
	require.Len(t, points, 2)
	assert.Equal(t, 17, points[0].Hour)
	assert.Equal(t, 3.0, points[0].DownloadSpeed)
	assert.Equal(t, 0, points[1].Hour)
	assert.Nil(t, points[1].Ping)
}

func TestDefaultRange(t *testing.T) {
	min, max := DefaultRange(time.Date(2024, 3, 4, 23, 59, 0, 0, time.Local))
	assert.Equal(t, "2024-02-26", min)
	assert.Equal(t, "2024-03-05", max)
}
