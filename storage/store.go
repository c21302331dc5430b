package storage

import (
	"context"
	"errors"
	"time"
)

// TimestampLayout is how Record.Timestamp is written. It sorts
// lexicographically in time order, so date strings such as "2024-01-05"
// work as range bounds, and it matches databases written by earlier
// releases of the tool.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// FormatTimestamp renders ts in TimestampLayout, local time.
func FormatTimestamp(ts time.Time) string {
	return ts.Local().Format(TimestampLayout)
}

var (
	// ErrUnavailable means the data folder or database file cannot be
	// created or opened.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrWrite means a record could not be committed. No partial row is
	// left behind.
	ErrWrite = errors.New("storage write failed")
)

// Record is a single persisted speedtest row.
//
// A failed cycle is stored with zero speeds and byte counts and with nil
// Ping, ServerHost and ServerID.
type Record struct {
	ID            int64    // row identity, set by Append
	Timestamp     string   // TimestampLayout, set once when the record is built
	DownloadSpeed float64  // bits per second
	UploadSpeed   float64  // bits per second
	BytesSent     int64    // bytes
	BytesReceived int64    // bytes
	Ping          *float64 // milliseconds
	ServerHost    *string
	ServerID      *string
}

// Degraded reports whether r carries the sentinel values of a cycle that
// ran out of retries.
func (r Record) Degraded() bool {
	return r.Ping == nil && r.ServerHost == nil && r.ServerID == nil
}

// RecordSet is the answer to a record query. Exists is false when the
// database has never been written, which callers show as "no results yet";
// an existing store with nothing in range has Exists set and no Records.
type RecordSet struct {
	Exists  bool
	Records []Record
}

// NoData reports whether the store did not exist when queried.
func (rs RecordSet) NoData() bool { return !rs.Exists }

// Table is the answer to a free-form read query.
type Table struct {
	Exists  bool
	Columns []string
	Rows    [][]any
}

// NoData reports whether the store did not exist when queried.
func (t Table) NoData() bool { return !t.Exists }

// Store abstracts the persistence back-end for speedtest records.
//
// Implementations own the on-disk representation. Every call opens its own
// connection and closes it before returning.
type Store interface {
	// Initialize makes sure the data folder exists. Safe on every start.
	Initialize(ctx context.Context) error

	// Append stores one record atomically, creating the table on first use,
	// and returns it with ID set.
	Append(ctx context.Context, rec Record) (Record, error)

	// Query runs a read-only statement. Statements that would modify the
	// database fail.
	Query(ctx context.Context, query string, args ...any) (Table, error)

	// QueryByDateRange returns records whose timestamp is within [min, max],
	// compared as strings, oldest first.
	QueryByDateRange(ctx context.Context, min, max string) (RecordSet, error)

	// All returns up to limit records in insertion order; limit <= 0 means
	// every record.
	All(ctx context.Context, limit int) (RecordSet, error)

	// HasResults reports whether at least one record has been stored.
	HasResults(ctx context.Context) (bool, error)

	// DeleteStore removes the database. Absent stores are not an error.
	DeleteStore(ctx context.Context) error

	// Path is the database file location.
	Path() string
}
