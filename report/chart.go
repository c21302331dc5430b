package report

import (
	"strconv"
	"time"

	"netspeedlogger/storage"
)

// ChartPoint is one record as plotted by the dashboard.
type ChartPoint struct {
	Timestamp     string   `json:"timestamp"`
	DownloadSpeed float64  `json:"download_speed"` // Mb/s
	UploadSpeed   float64  `json:"upload_speed"`   // Mb/s
	Ping          *float64 `json:"ping"`
	Hour          int      `json:"hour"`
}

// Chart converts records to chart points. The hour of day is read from
// the timestamp text.
func Chart(recs []storage.Record) []ChartPoint {
	points := make([]ChartPoint, 0, len(recs))
	for _, r := range recs {
		points = append(points, ChartPoint{
			Timestamp:     r.Timestamp,
			DownloadSpeed: Mbps(r.DownloadSpeed),
			UploadSpeed:   Mbps(r.UploadSpeed),
			Ping:          r.Ping,
			Hour:          hourOf(r.Timestamp),
		})
	}
	return points
}

func hourOf(ts string) int {
	if len(ts) < 13 {
		return 0
	}
	h, err := strconv.Atoi(ts[11:13])
	if err != nil {
		return 0
	}
	return h
}

// DefaultRange is the dashboard's initial window: a week back from today
// until tomorrow, as YYYY-MM-DD bounds.
func DefaultRange(now time.Time) (min, max string) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return day.AddDate(0, 0, -7).Format(time.DateOnly), day.AddDate(0, 0, 1).Format(time.DateOnly)
}
