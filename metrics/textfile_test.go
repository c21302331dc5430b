package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netspeedlogger/storage"
)

func TestWriteTextfile(t *testing.T) {
	ping := 12.5
	host, id := "speedtest.example.net:8080", "4242"
	path := filepath.Join(t.TempDir(), "netspeedlogger.prom")

	err := WriteTextfile(path, storage.Record{
		Timestamp:     "2024-01-01 10:00:00.000000",
		DownloadSpeed: 93e6,
		UploadSpeed:   18.5e6,
		BytesSent:     2048,
		BytesReceived: 4096,
		Ping:          &ping,
		ServerHost:    &host,
		ServerID:      &id,
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)
	assert.Contains(t, out, "netspeedlogger_download_bits_per_second 9.3e+07")
	assert.Contains(t, out, "netspeedlogger_bytes_received 4096")
	assert.Contains(t, out, "netspeedlogger_ping_milliseconds 12.5")
	assert.Contains(t, out, "netspeedlogger_last_run_degraded 0")
	assert.Contains(t, out, "# HELP netspeedlogger_last_run_timestamp_seconds")
}

func TestWriteTextfileDegraded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netspeedlogger.prom")
	require.NoError(t, WriteTextfile(path, storage.Record{Timestamp: "2024-01-01 10:00:00.000000"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "netspeedlogger_last_run_degraded 1")
	assert.Contains(t, string(raw), "netspeedlogger_ping_milliseconds NaN")
}

func TestObserveRejectsBadTimestamp(t *testing.T) {
	g := NewGauges()
	assert.Error(t, g.Observe(storage.Record{Timestamp: "yesterday"}))

	mfs, err := g.Gatherer().Gather()
	require.NoError(t, err)
	assert.Len(t, mfs, 7)
}
