// Package report turns stored records into what the CLI prints: unit
// conversions, markdown tables, descriptive statistics and the chart
// dataset handed to the dashboard.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"netspeedlogger/storage"
)

// Display units. Speeds are stored in bits/s and shown as "Mb/s" using a
// 1024*1024 divisor; byte counters are shown in kB using 1024.
const (
	MegaDivisor = 1024 * 1024
	KiloDivisor = 1024
)

// Mbps converts bits/s to the Mb/s shown in tables and charts.
func Mbps(bitsPerSecond float64) float64 {
	return bitsPerSecond / MegaDivisor
}

// Markdown writes a GitHub-flavoured markdown table.
func Markdown(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.AppendBulk(rows)
	table.Render()
}

// Cell renders one value coming out of a storage.Table.
func Cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return FormatFloat(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// FormatFloat is the float format used in every table.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}

// Table renders a storage.Table.
func Table(w io.Writer, t storage.Table) {
	rows := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		cells := make([]string, len(r))
		for i, v := range r {
			cells[i] = Cell(v)
		}
		rows = append(rows, cells)
	}
	Markdown(w, t.Columns, rows)
}

// RecordHeader names the columns written by Records.
var RecordHeader = []string{
	"download_speed", "upload_speed", "bytes_sent", "bytes_received",
	"ping", "server_host", "server_id", "timestamp",
}

// Records renders records with their stored column names and units.
func Records(w io.Writer, recs []storage.Record) {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			FormatFloat(r.DownloadSpeed),
			FormatFloat(r.UploadSpeed),
			strconv.FormatInt(r.BytesSent, 10),
			strconv.FormatInt(r.BytesReceived, 10),
			optFloat(r.Ping),
			optString(r.ServerHost),
			optString(r.ServerID),
			r.Timestamp,
		})
	}
	Markdown(w, RecordHeader, rows)
}

func optFloat(v *float64) string {
	if v == nil {
		return "None"
	}
	return FormatFloat(*v)
}

func optString(v *string) string {
	if v == nil {
		return "None"
	}
	return *v
}
