package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"netspeedlogger/storage"
)

var errMissing = errors.New("missing")

// Validate checks the shape of a raw document and converts it to a Result.
// Fields are checked in a fixed order and the first problem is reported as
// a *Failure of kind KindMalformedResult naming the field.
//
// Floats accept Go floating point values and json.Number; integers accept
// Go integer types and integral json.Number. Speeds, byte counts and ping
// must not be negative.
func Validate(raw Raw) (Result, error) {
	var (
		res Result
		err error
	)
	if res.Download, err = floatField(raw, "download"); err != nil {
		return Result{}, malformed("download", err)
	}
	if res.Upload, err = floatField(raw, "upload"); err != nil {
		return Result{}, malformed("upload", err)
	}
	if res.BytesSent, err = intField(raw, "bytes_sent"); err != nil {
		return Result{}, malformed("bytes_sent", err)
	}
	if res.BytesReceived, err = intField(raw, "bytes_received"); err != nil {
		return Result{}, malformed("bytes_received", err)
	}
	if res.Ping, err = floatField(raw, "ping"); err != nil {
		return Result{}, malformed("ping", err)
	}

	v, ok := raw["server"]
	if !ok {
		return Result{}, malformed("server", errMissing)
	}
	server, ok := v.(map[string]any)
	if !ok {
		return Result{}, malformed("server", fmt.Errorf("want object, got %T", v))
	}
	if res.Server.Host, err = stringField(server, "host"); err != nil {
		return Result{}, malformed("server.host", err)
	}
	if res.Server.ID, err = stringField(server, "id"); err != nil {
		return Result{}, malformed("server.id", err)
	}
	return res, nil
}

func malformed(field string, err error) error {
	return &Failure{Kind: KindMalformedResult, Field: field, Err: err}
}

func floatField(m map[string]any, key string) (float64, error) {
	v, ok := m[key]
	if !ok {
		return 0, errMissing
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("want float, got %q", n.String())
		}
		f = parsed
	default:
		return 0, fmt.Errorf("want float, got %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, fmt.Errorf("out of range: %v", f)
	}
	return f, nil
}

func intField(m map[string]any, key string) (int64, error) {
	v, ok := m[key]
	if !ok {
		return 0, errMissing
	}
	var i int64
	switch n := v.(type) {
	case int:
		i = int64(n)
	case int8:
		i = int64(n)
	case int16:
		i = int64(n)
	case int32:
		i = int64(n)
	case int64:
		i = n
	case uint:
		i = int64(n)
	case uint8:
		i = int64(n)
	case uint16:
		i = int64(n)
	case uint32:
		i = int64(n)
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("out of range: %d", n)
		}
		i = int64(n)
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("want integer, got %q", n.String())
		}
		i = parsed
	default:
		return 0, fmt.Errorf("want integer, got %T", v)
	}
	if i < 0 {
		return 0, fmt.Errorf("out of range: %d", i)
	}
	return i, nil
}

func stringField(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", errMissing
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("want string, got %T", v)
	}
	return s, nil
}

// Normalize maps a validated result onto the storage schema, stamping it
// with ts.
func Normalize(res Result, ts time.Time) storage.Record {
	ping := res.Ping
	host := res.Server.Host
	id := res.Server.ID
	return storage.Record{
		Timestamp:     storage.FormatTimestamp(ts),
		DownloadSpeed: res.Download,
		UploadSpeed:   res.Upload,
		BytesSent:     res.BytesSent,
		BytesReceived: res.BytesReceived,
		Ping:          &ping,
		ServerHost:    &host,
		ServerID:      &id,
	}
}

// DegradedRecord is what a cycle stores when every attempt failed: zero
// speeds and counters, no ping and no server.
func DegradedRecord(ts time.Time) storage.Record {
	return storage.Record{Timestamp: storage.FormatTimestamp(ts)}
}

// Stamper hands out timestamps that never go backwards, even if the wall
// clock is stepped back between two cycles.
type Stamper struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewStamper returns a Stamper reading now; nil means time.Now.
func NewStamper(now func() time.Time) *Stamper {
	if now == nil {
		now = time.Now
	}
	return &Stamper{now: now}
}

// Stamp returns max(now, previous stamp).
func (s *Stamper) Stamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now()
	if t.Before(s.last) {
		t = s.last
	}
	s.last = t
	return t
}
