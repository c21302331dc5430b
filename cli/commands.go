package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"netspeedlogger/collector"
	"netspeedlogger/config"
	"netspeedlogger/export"
	"netspeedlogger/logger"
	"netspeedlogger/metrics"
	"netspeedlogger/remote"
	"netspeedlogger/report"
	"netspeedlogger/storage"
)

// resultsQuery feeds `results`. Byte counters are integers, so kB is
// rounded down.
const resultsQuery = "select substr(timestamp,1,19) as 'Date Time', " +
	"download_speed/(1024*1024) as 'Download Speed (Mb/s)', " +
	"upload_speed/(1024*1024) as 'Upload Speed (Mb/s)', " +
	"bytes_sent/(1024) as 'kB Sent', " +
	"bytes_received/(1024) as 'kB Recieved', " +
	"server_id as 'Server ID', " +
	"server_host as 'Server Host', " +
	"ping as 'Ping (ms)' " +
	"from netspeedlogger limit 10000"

// latest is the upper bound used when only --from is given.
const latest = "9999-12-31 23:59:59.999999"

func speedtestFlags(fs *pflag.FlagSet) {
	fs.Int("retries", collector.DefaultRetries, "attempts before storing a zero-valued record")
	fs.Duration("timeout", collector.DefaultTimeout, "server discovery timeout per attempt")
	fs.Duration("backoff", collector.DefaultBackoff, "pause between attempts")
	fs.Duration("probe-deadline", 0, "bound on a whole attempt, 0 for none")
}

func rangeFlags(fs *pflag.FlagSet) {
	fs.String("from", "", "first date, YYYY-MM-DD")
	fs.String("to", "", "last date, YYYY-MM-DD")
}

func exportFlags(fs *pflag.FlagSet) {
	rangeFlags(fs)
	fs.String("out", "netspeedlogger.parquet", "destination file")
}

func importFlags(fs *pflag.FlagSet) {
	fs.String("file", "-", "file of JSON documents, - for stdin")
}

func (a *App) speedtest(ctx context.Context, e *env) error {
	const title = "netspeedlogger speedtest"
	fmt.Fprintln(a.Stdout, title)
	fmt.Fprintln(a.Stdout, strings.Repeat("=", len(title)))
	fmt.Fprintln(a.Stdout, "Starting to run an internet speed test, and logging the output")

	log := logger.WithRun(e.log, logger.NewRunID())
	ctx = logger.WithContext(ctx, log)

	newProber := a.NewProber
	if newProber == nil {
		newProber = SpeedtestNetProber
	}
	r := collector.NewRetrier(newProber(e.cfg, log), collector.Policy{
		MaxRetries: e.cfg.Retries,
		Timeout:    e.cfg.Timeout,
		Backoff:    e.cfg.Backoff,
	}, log)
	if a.Sleep != nil {
		r.Sleep = a.Sleep
	}
	if a.Now != nil {
		r.WithClock(a.Now)
	}

	rec, err := r.RunAndStore(ctx, e.store)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.Stdout, "Speedtest complete. Results:")
	report.Records(a.Stdout, []storage.Record{rec})
	fmt.Fprintf(a.Stdout, "Transferred %s down, %s up\n",
		humanize.IBytes(uint64(rec.BytesReceived)), humanize.IBytes(uint64(rec.BytesSent)))

	if e.cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(e.cfg.MetricsTextfile, rec); err != nil {
			log.Warn("cannot write metrics textfile", zap.String("path", e.cfg.MetricsTextfile), zap.Error(err))
		}
	}
	return nil
}

func (a *App) results(ctx context.Context, e *env) error {
	has, err := e.store.HasResults(ctx)
	if err != nil {
		return err
	}
	if !has {
		fmt.Fprintln(a.Stdout, NoResults)
		return nil
	}

	t, err := e.store.Query(ctx, resultsQuery)
	if err != nil {
		return err
	}
	report.Table(a.Stdout, t)
	return nil
}

func (a *App) summary(ctx context.Context, e *env) error {
	has, err := e.store.HasResults(ctx)
	if err != nil {
		return err
	}
	if !has {
		fmt.Fprintln(a.Stdout, NoResults)
		return nil
	}

	rs, err := e.store.All(ctx, 0)
	if err != nil {
		return err
	}
	return report.Summary(a.Stdout, report.SummaryColumns(rs.Records))
}

func (a *App) deleteDatabase(ctx context.Context, e *env) error {
	fmt.Fprintf(a.Stdout, "Deleting netspeedlogger database at path: `%s`\n", e.store.Path())
	fmt.Fprintln(a.Stdout, "Are you sure you want to delete the whole database? Input 'y' for yes or 'n' for no")

	switch Confirm(a.prompter(), maxPrompts) {
	case answerNo:
		fmt.Fprintln(a.Stdout, "Not deleting database")
	case answerYes:
		if err := e.store.DeleteStore(ctx); err != nil {
			return err
		}
		e.log.Info("database deleted", zap.String("path", e.store.Path()))
		fmt.Fprintln(a.Stdout, "Database deleted")
	}
	return nil
}

// dateRange reads --from/--to. When both are empty it returns fallback.
func dateRange(fs *pflag.FlagSet, fallback func() (string, string)) (string, string) {
	from, _ := fs.GetString("from")
	to, _ := fs.GetString("to")
	if from == "" && to == "" {
		return fallback()
	}
	if to == "" {
		to = latest
	}
	return from, to
}

func (a *App) chart(ctx context.Context, e *env) error {
	min, max := dateRange(e.flags, func() (string, string) { return report.DefaultRange(a.now()) })

	rs, err := e.store.QueryByDateRange(ctx, min, max)
	if err != nil {
		return err
	}
	if rs.NoData() {
		fmt.Fprintln(a.Stdout, NoData)
		return nil
	}

	enc := json.NewEncoder(a.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report.Chart(rs.Records))
}

func (a *App) exportParquet(ctx context.Context, e *env) error {
	out, _ := e.flags.GetString("out")

	var rs storage.RecordSet
	var err error
	min, max := dateRange(e.flags, func() (string, string) { return "", "" })
	if min == "" && max == "" {
		rs, err = e.store.All(ctx, 0)
	} else {
		rs, err = e.store.QueryByDateRange(ctx, min, max)
	}
	if err != nil {
		return err
	}
	if rs.NoData() {
		fmt.Fprintln(a.Stdout, NoResults)
		return nil
	}

	if err := export.WriteParquet(out, rs.Records); err != nil {
		return fmt.Errorf("export to %s: %w", out, err)
	}
	e.log.Info("records exported", zap.String("path", out), zap.Int("records", len(rs.Records)))
	fmt.Fprintf(a.Stdout, "Exported %d records to %s\n", len(rs.Records), out)
	return nil
}

func (a *App) push(ctx context.Context, e *env) error {
	has, err := e.store.HasResults(ctx)
	if err != nil {
		return err
	}
	if !has {
		fmt.Fprintln(a.Stdout, NoResults)
		return nil
	}

	dst, err := remote.Push(ctx, e.cfg.SFTP, e.store.Path(), e.log)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Database uploaded to %s:%s\n", e.cfg.SFTP.Host, dst)
	return nil
}

func (a *App) showConfig(_ context.Context, e *env) error {
	out, err := config.Dump(e.cfg)
	if err != nil {
		return err
	}
	fmt.Fprint(a.Stdout, out)
	return nil
}
