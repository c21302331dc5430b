package collector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"netspeedlogger/logger"
)

// ServerFinder is the server-discovery capability a probe depends on.
type ServerFinder interface {
	// BestServer picks the endpoint to measure against. It returns
	// (nil, nil) when discovery worked but no candidate qualifies.
	BestServer(ctx context.Context) (*Server, error)
}

// Meter is the throughput/latency measurement capability.
type Meter interface {
	Latency(ctx context.Context, srv Server) (time.Duration, error)
	Download(ctx context.Context, srv Server) (Throughput, error)
	Upload(ctx context.Context, srv Server) (Throughput, error)
}

// Runner performs single probe attempts.
//
// A probe saturates the link, so a Runner lets only one probe run at a
// time; concurrent callers queue up.
type Runner struct {
	Finder ServerFinder
	Meter  Meter

	// ProbeDeadline bounds the whole probe, discovery included. Zero leaves
	// the transfer phases unbounded.
	ProbeDeadline time.Duration

	Log *zap.Logger

	mu sync.Mutex
}

// NewRunner returns a ready-to-use runner.
func NewRunner(finder ServerFinder, meter Meter, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{Finder: finder, Meter: meter, Log: log}
}

// Probe runs discovery, then latency, download and upload, one after the
// other. timeout bounds discovery only.
//
// Failures come back as *Failure. If ctx itself is cancelled the context
// error is returned as is.
func (r *Runner) Probe(ctx context.Context, timeout time.Duration) (Raw, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := logger.FromContext(ctx, r.Log)

	probeCtx := ctx
	if r.ProbeDeadline > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, r.ProbeDeadline)
		defer cancel()
	}

	discoverCtx, cancel := context.WithTimeout(probeCtx, timeout)
	srv, err := r.Finder.BestServer(discoverCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Failure{Kind: KindConfigRetrieval, Err: err}
	}
	if srv == nil {
		return nil, &Failure{Kind: KindNoServerFound}
	}
	log.Info("server selected",
		zap.String("server_id", srv.ID),
		zap.String("server_host", srv.Host),
		zap.String("sponsor", srv.Sponsor),
		zap.Float64("distance_km", srv.Distance),
	)

	latency, err := r.Meter.Latency(probeCtx, *srv)
	if err != nil {
		return nil, r.phaseFailure(ctx, "latency", err)
	}
	down, err := r.Meter.Download(probeCtx, *srv)
	if err != nil {
		return nil, r.phaseFailure(ctx, "download", err)
	}
	up, err := r.Meter.Upload(probeCtx, *srv)
	if err != nil {
		return nil, r.phaseFailure(ctx, "upload", err)
	}

	log.Debug("probe measured",
		zap.Duration("latency", latency),
		zap.Float64("download_bps", down.BitsPerSecond),
		zap.Float64("upload_bps", up.BitsPerSecond),
	)

	return Raw{
		"download":       down.BitsPerSecond,
		"upload":         up.BitsPerSecond,
		"bytes_sent":     up.Bytes,
		"bytes_received": down.Bytes,
		"ping":           float64(latency) / float64(time.Millisecond),
		"server": map[string]any{
			"host": srv.Host,
			"id":   srv.ID,
		},
	}, nil
}

func (r *Runner) phaseFailure(ctx context.Context, phase string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &Failure{Kind: KindMeasurement, Field: phase, Err: err}
}
