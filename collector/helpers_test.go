package collector

import (
	"context"
	"errors"
	"time"
)

// funcFinder is a ServerFinder built from a function.
type funcFinder func(ctx context.Context) (*Server, error)

func (f funcFinder) BestServer(ctx context.Context) (*Server, error) { return f(ctx) }

// stubMeter returns fixed measurements unless an error is configured.
type stubMeter struct {
	latency   time.Duration
	down, up  Throughput
	failPhase string
	calls     []string
	blockOn   string // phase that waits for ctx
}

func (m *stubMeter) phase(ctx context.Context, name string) error {
	m.calls = append(m.calls, name)
	if m.blockOn == name {
		<-ctx.Done()
		return ctx.Err()
	}
	if m.failPhase == name {
		return errors.New("connection reset by peer")
	}
	return nil
}

func (m *stubMeter) Latency(ctx context.Context, _ Server) (time.Duration, error) {
	if err := m.phase(ctx, "latency"); err != nil {
		return 0, err
	}
	return m.latency, nil
}

func (m *stubMeter) Download(ctx context.Context, _ Server) (Throughput, error) {
	if err := m.phase(ctx, "download"); err != nil {
		return Throughput{}, err
	}
	return m.down, nil
}

func (m *stubMeter) Upload(ctx context.Context, _ Server) (Throughput, error) {
	if err := m.phase(ctx, "upload"); err != nil {
		return Throughput{}, err
	}
	return m.up, nil
}

func goodServer(ctx context.Context) (*Server, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Server{ID: "4242", Host: "speedtest.example.net:8080", Sponsor: "Example ISP"}, nil
}

func goodMeter() *stubMeter {
	return &stubMeter{
		latency: 12500 * time.Microsecond,
		down:    Throughput{BitsPerSecond: 93e6, Bytes: 117_440_512},
		up:      Throughput{BitsPerSecond: 18.5e6, Bytes: 24_117_248},
	}
}

func validRaw() Raw {
	return Raw{
		"download":       93012345.6,
		"upload":         18501234.5,
		"bytes_sent":     int64(24117248),
		"bytes_received": int64(117440512),
		"ping":           12.3,
		"server":         map[string]any{"host": "speedtest.example.net:8080", "id": "4242"},
	}
}

// scriptedProber replays errors/results in order; the last entry repeats.
type scriptedProber struct {
	steps    []func() (Raw, error)
	calls    int
	timeouts []time.Duration
}

func (p *scriptedProber) Probe(_ context.Context, timeout time.Duration) (Raw, error) {
	p.timeouts = append(p.timeouts, timeout)
	i := min(p.calls, len(p.steps)-1)
	p.calls++
	return p.steps[i]()
}

func fail(kind Kind) func() (Raw, error) {
	return func() (Raw, error) { return nil, &Failure{Kind: kind, Err: errors.New("boom")} }
}

func succeed(raw Raw) func() (Raw, error) {
	return func() (Raw, error) { return raw, nil }
}
