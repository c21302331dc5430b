package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"netspeedlogger/collector"
	"netspeedlogger/storage"
)

// maxLine is the longest JSON document accepted by import.
const maxLine = 1 << 20

// ImportStats counts what Import did.
type ImportStats struct {
	Imported int
	Skipped  int
}

// Import reads speedtest-cli JSON documents, one per line, and appends
// each valid one. Malformed lines are logged and skipped; a storage error
// stops the import.
func Import(ctx context.Context, r io.Reader, store storage.Store, now func() time.Time, log *zap.Logger) (ImportStats, error) {
	var stats ImportStats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		// ignore blank lines
		if text == "" {
			continue
		}

		rec, err := parseDocument(text, now)
		if err != nil {
			log.Warn("skipping line", zap.Int("line", line), zap.Error(err))
			stats.Skipped++
			continue
		}
		if _, err := store.Append(ctx, rec); err != nil {
			return stats, fmt.Errorf("line %d: %w", line, err)
		}
		stats.Imported++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scanner error: %w", err)
	}
	return stats, nil
}

func parseDocument(text string, now func() time.Time) (storage.Record, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var raw collector.Raw
	if err := dec.Decode(&raw); err != nil {
		return storage.Record{}, fmt.Errorf("json decode: %w", err)
	}

	res, err := collector.Validate(raw)
	if err != nil {
		return storage.Record{}, err
	}
	return collector.Normalize(res, documentTime(raw, now)), nil
}

// documentTime is the document's own timestamp when it has one.
func documentTime(raw collector.Raw, now func() time.Time) time.Time {
	if s, ok := raw["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts
		}
	}
	return now()
}

func (a *App) importResults(ctx context.Context, e *env) error {
	file, _ := e.flags.GetString("file")

	in := a.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("open file: %w", err)
		}
		defer f.Close()
		in = f
	}

	stats, err := Import(ctx, in, e.store, a.now, e.log)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Imported %d records, skipped %d\n", stats.Imported, stats.Skipped)
	return nil
}
