package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	// FileName is the database file inside the data folder.
	FileName = "netspeedlogger.sqlite3"

	// TableName is the single table holding every record.
	TableName = "netspeedlogger"
)

const schema = `
CREATE TABLE IF NOT EXISTS netspeedlogger (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp      TEXT NOT NULL,
    download_speed REAL NOT NULL,
    upload_speed   REAL NOT NULL,
    bytes_sent     INTEGER NOT NULL,
    bytes_received INTEGER NOT NULL,
    ping           REAL,
    server_host    TEXT,
    server_id      TEXT
);
CREATE INDEX IF NOT EXISTS idx_netspeedlogger_timestamp ON netspeedlogger(timestamp);
`

// rowid works both for tables created here and for tables that were
// created by older releases without an id column.
const selectColumns = `rowid, timestamp, download_speed, upload_speed,
    bytes_sent, bytes_received, ping, server_host, server_id`

// SQLite is the Store backed by a single SQLite file.
type SQLite struct {
	dir string
	log *zap.Logger
}

var _ Store = (*SQLite)(nil)

// NewSQLite returns a store keeping its database in dir. Nothing is touched
// on disk until the first call.
func NewSQLite(dir string, log *zap.Logger) *SQLite {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLite{dir: dir, log: log}
}

// Path implements Store.
func (s *SQLite) Path() string {
	return filepath.Join(s.dir, FileName)
}

// Initialize implements Store.
func (s *SQLite) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create data folder %s: %w", ErrUnavailable, s.dir, err)
	}
	return nil
}

const (
	writeDSN = "file:%s?_pragma=busy_timeout(5000)"
	readDSN  = writeDSN + "&_pragma=query_only(1)"
)

// open returns a fresh handle. The caller closes it before returning.
func (s *SQLite) open(ctx context.Context) (*sql.DB, error) {
	return s.connect(ctx, writeDSN)
}

// openReadOnly is open for readers: any statement that would change the
// database fails.
func (s *SQLite) openReadOnly(ctx context.Context) (*sql.DB, error) {
	return s.connect(ctx, readDSN)
}

func (s *SQLite) connect(ctx context.Context, format string) (*sql.DB, error) {
	// The modernc.org driver is pure-go and works without CGO.
	dsn := fmt.Sprintf(format, s.Path())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrUnavailable, s.Path(), err)
	}
	// One connection per operation; nothing is pooled across calls.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrUnavailable, s.Path(), err)
	}
	return db, nil
}

// exists reports whether the database file is present.
func (s *SQLite) exists() (bool, error) {
	_, err := os.Stat(s.Path())
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%w: stat %s: %w", ErrUnavailable, s.Path(), err)
	}
}

// Append implements Store. The table is created and the row inserted in a
// single transaction.
func (s *SQLite) Append(ctx context.Context, rec Record) (Record, error) {
	if err := s.Initialize(ctx); err != nil {
		return Record{}, err
	}
	db, err := s.open(ctx)
	if err != nil {
		return Record{}, err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("%w: begin tx: %w", ErrWrite, err)
	}
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		_ = tx.Rollback()
		return Record{}, fmt.Errorf("%w: create table: %w", ErrWrite, err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO netspeedlogger (timestamp, download_speed, upload_speed,
    bytes_sent, bytes_received, ping, server_host, server_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.DownloadSpeed, rec.UploadSpeed,
		rec.BytesSent, rec.BytesReceived,
		nullFloat(rec.Ping), nullString(rec.ServerHost), nullString(rec.ServerID),
	)
	if err != nil {
		_ = tx.Rollback()
		return Record{}, fmt.Errorf("%w: insert: %w", ErrWrite, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return Record{}, fmt.Errorf("%w: last insert id: %w", ErrWrite, err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("%w: commit tx: %w", ErrWrite, err)
	}

	rec.ID = id
	s.log.Info("record persisted",
		zap.String("path", s.Path()),
		zap.Int64("id", id),
		zap.String("timestamp", rec.Timestamp),
		zap.Bool("degraded", rec.Degraded()),
	)
	return rec, nil
}

// Query implements Store.
func (s *SQLite) Query(ctx context.Context, query string, args ...any) (Table, error) {
	ok, err := s.exists()
	if err != nil || !ok {
		return Table{}, err
	}
	db, err := s.openReadOnly(ctx)
	if err != nil {
		return Table{}, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return Table{}, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Table{}, fmt.Errorf("query columns: %w", err)
	}
	t := Table{Exists: true, Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Table{}, fmt.Errorf("scan row: %w", err)
		}
		t.Rows = append(t.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return Table{}, fmt.Errorf("iterate rows: %w", err)
	}
	return t, nil
}

// QueryByDateRange implements Store. The bounds are bound parameters and
// are never interpolated into the statement.
func (s *SQLite) QueryByDateRange(ctx context.Context, min, max string) (RecordSet, error) {
	return s.selectRecords(ctx,
		`SELECT `+selectColumns+` FROM netspeedlogger
WHERE timestamp >= ? AND timestamp <= ?
ORDER BY timestamp, rowid`,
		min, max)
}

// All implements Store.
func (s *SQLite) All(ctx context.Context, limit int) (RecordSet, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	return s.selectRecords(ctx,
		`SELECT `+selectColumns+` FROM netspeedlogger ORDER BY rowid LIMIT ?`,
		limit)
}

func (s *SQLite) selectRecords(ctx context.Context, query string, args ...any) (RecordSet, error) {
	ok, err := s.exists()
	if err != nil || !ok {
		return RecordSet{}, err
	}
	db, err := s.openReadOnly(ctx)
	if err != nil {
		return RecordSet{}, err
	}
	defer db.Close()

	found, err := tableExists(ctx, db)
	if err != nil {
		return RecordSet{}, err
	}
	rs := RecordSet{Exists: true}
	if !found {
		return rs, nil
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return RecordSet{}, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r    Record
			ping sql.NullFloat64
			host sql.NullString
			id   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.DownloadSpeed, &r.UploadSpeed,
			&r.BytesSent, &r.BytesReceived, &ping, &host, &id); err != nil {
			return RecordSet{}, fmt.Errorf("scan record: %w", err)
		}
		if ping.Valid {
			r.Ping = &ping.Float64
		}
		if host.Valid {
			r.ServerHost = &host.String
		}
		if id.Valid {
			r.ServerID = &id.String
		}
		rs.Records = append(rs.Records, r)
	}
	if err := rows.Err(); err != nil {
		return RecordSet{}, fmt.Errorf("iterate records: %w", err)
	}
	return rs, nil
}

// HasResults implements Store.
func (s *SQLite) HasResults(ctx context.Context) (bool, error) {
	ok, err := s.exists()
	if err != nil || !ok {
		return false, err
	}
	db, err := s.openReadOnly(ctx)
	if err != nil {
		return false, err
	}
	defer db.Close()

	found, err := tableExists(ctx, db)
	if err != nil || !found {
		return false, err
	}
	var n int64
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM netspeedlogger`).Scan(&n); err != nil {
		return false, fmt.Errorf("count records: %w", err)
	}
	return n > 0, nil
}

// DeleteStore implements Store.
func (s *SQLite) DeleteStore(ctx context.Context) error {
	path := s.Path()
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", p, err)
		}
	}
	s.log.Warn("database deleted", zap.String("path", path))
	return nil
}

func tableExists(ctx context.Context, db *sql.DB) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		TableName).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspect schema: %w", err)
	}
	return n > 0, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
