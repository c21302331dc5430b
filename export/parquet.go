// Package export writes stored records to Parquet files and reads them back.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"netspeedlogger/storage"
)

// Row is a record in Parquet format. Pointer fields are optional columns,
// so degraded records keep null ping and server values.
type Row struct {
	ID            int64    `parquet:"id"`
	Timestamp     string   `parquet:"timestamp,zstd"`
	DownloadSpeed float64  `parquet:"download_speed"`
	UploadSpeed   float64  `parquet:"upload_speed"`
	BytesSent     int64    `parquet:"bytes_sent"`
	BytesReceived int64    `parquet:"bytes_received"`
	Ping          *float64 `parquet:"ping"`
	ServerHost    *string  `parquet:"server_host,zstd"`
	ServerID      *string  `parquet:"server_id,zstd"`
}

// RecordToRow converts a storage.Record to a Row.
func RecordToRow(r storage.Record) Row {
	return Row{
		ID:            r.ID,
		Timestamp:     r.Timestamp,
		DownloadSpeed: r.DownloadSpeed,
		UploadSpeed:   r.UploadSpeed,
		BytesSent:     r.BytesSent,
		BytesReceived: r.BytesReceived,
		Ping:          r.Ping,
		ServerHost:    r.ServerHost,
		ServerID:      r.ServerID,
	}
}

// RowToRecord converts a Row back to a storage.Record.
func RowToRecord(r Row) storage.Record {
	return storage.Record{
		ID:            r.ID,
		Timestamp:     r.Timestamp,
		DownloadSpeed: r.DownloadSpeed,
		UploadSpeed:   r.UploadSpeed,
		BytesSent:     r.BytesSent,
		BytesReceived: r.BytesReceived,
		Ping:          r.Ping,
		ServerHost:    r.ServerHost,
		ServerID:      r.ServerID,
	}
}

// Write encodes records to w.
func Write(w io.Writer, recs []storage.Record) error {
	writer := parquet.NewGenericWriter[Row](w, parquet.Compression(&parquet.Zstd))

	rows := make([]Row, len(recs))
	for i, r := range recs {
		rows[i] = RecordToRow(r)
	}
	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// WriteParquet writes records to path. The file is written under a
// temporary name and renamed once complete.
func WriteParquet(path string, recs []storage.Record) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if err := Write(f, recs); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// ReadParquet reads every record from a file written by WriteParquet.
func ReadParquet(path string) ([]storage.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[Row](f)
	defer reader.Close()

	rows := make([]Row, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	recs := make([]storage.Record, n)
	for i := 0; i < n; i++ {
		recs[i] = RowToRecord(rows[i])
	}
	return recs, nil
}
