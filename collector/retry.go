package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/bassosimone/errclass"
	"go.uber.org/zap"

	"netspeedlogger/logger"
	"netspeedlogger/storage"
)

// Prober is what the Retrier drives; *Runner implements it.
type Prober interface {
	Probe(ctx context.Context, timeout time.Duration) (Raw, error)
}

var _ Prober = (*Runner)(nil)

// Policy is the retry budget of one speedtest cycle.
type Policy struct {
	MaxRetries int           // attempts, values below 1 count as 1
	Timeout    time.Duration // server discovery bound per attempt
	Backoff    time.Duration // pause between attempts
}

// DefaultPolicy is 3 attempts, 15s discovery timeout, 10s backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultRetries,
		Timeout:    DefaultTimeout,
		Backoff:    DefaultBackoff,
	}
}

// Retrier turns a flaky Prober into exactly one record per cycle.
//
// Transient failures are retried up to Policy.MaxRetries; once the budget
// is spent the cycle yields DegradedRecord instead of an error. A result
// that fails validation, or a cancelled context, is returned as an error
// right away.
type Retrier struct {
	Prober Prober
	Policy Policy
	Log    *zap.Logger

	// Sleep waits between attempts. Defaults to a timer that gives up when
	// ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error

	stamper *Stamper
}

// NewRetrier wires a Retrier around p.
func NewRetrier(p Prober, policy Policy, log *zap.Logger) *Retrier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Retrier{
		Prober:  p,
		Policy:  policy,
		Log:     log,
		Sleep:   sleepContext,
		stamper: NewStamper(nil),
	}
}

// WithClock makes the Retrier stamp records using now. Meant for tests.
func (r *Retrier) WithClock(now func() time.Time) *Retrier {
	r.stamper = NewStamper(now)
	return r
}

// Run executes one cycle and returns the record to store.
func (r *Retrier) Run(ctx context.Context) (storage.Record, error) {
	log := logger.FromContext(ctx, r.Log)

	maxRetries := r.Policy.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	for attempt := 1; ; attempt++ {
		raw, err := r.Prober.Probe(ctx, r.Policy.Timeout)
		if err == nil {
			res, err := Validate(raw)
			if err != nil {
				log.Error("probe returned a malformed result", zap.Int("attempt", attempt), zap.Error(err))
				return storage.Record{}, err
			}
			rec := Normalize(res, r.stamper.Stamp())
			log.Info("speedtest succeeded",
				zap.Int("attempt", attempt),
				zap.Float64("download_bps", rec.DownloadSpeed),
				zap.Float64("upload_bps", rec.UploadSpeed),
				zap.Float64("ping_ms", res.Ping),
			)
			return rec, nil
		}

		if !IsTransient(err) {
			return storage.Record{}, fmt.Errorf("speedtest attempt %d: %w", attempt, err)
		}

		log.Warn("speedtest attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.String("err_class", errclass.New(err)),
			zap.Error(err),
		)
		if attempt >= maxRetries {
			break
		}
		if err := r.Sleep(ctx, r.Policy.Backoff); err != nil {
			return storage.Record{}, err
		}
	}

	log.Error("failed running speed test; returning zero values", zap.Int("retries", maxRetries))
	return DegradedRecord(r.stamper.Stamp()), nil
}

// RunAndStore runs one cycle and appends its record, degraded or not.
func (r *Retrier) RunAndStore(ctx context.Context, store storage.Store) (storage.Record, error) {
	rec, err := r.Run(ctx)
	if err != nil {
		return storage.Record{}, err
	}
	return store.Append(ctx, rec)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
