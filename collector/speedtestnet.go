package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/showwin/speedtest-go/speedtest"
	"go.uber.org/zap"
)

// candidates is how many of the closest servers are pinged when choosing
// the best one.
const candidates = 5

// SpeedtestNet measures against the speedtest.net server network. It
// implements both ServerFinder and Meter.
type SpeedtestNet struct {
	client *speedtest.Speedtest
	log    *zap.Logger

	mu      sync.Mutex
	servers map[string]*speedtest.Server // by ID, from the last discovery
}

var (
	_ ServerFinder = (*SpeedtestNet)(nil)
	_ Meter        = (*SpeedtestNet)(nil)
)

// NewSpeedtestNet returns an adapter using a fresh speedtest.net client.
func NewSpeedtestNet(log *zap.Logger) *SpeedtestNet {
	if log == nil {
		log = zap.NewNop()
	}
	return &SpeedtestNet{
		client:  speedtest.New(),
		log:     log,
		servers: make(map[string]*speedtest.Server),
	}
}

// BestServer fetches the server list, pings the closest few and keeps the
// one with the lowest latency.
//
// The caller's location is looked up first so distances are computed for
// every server. Without it the list keeps whatever distance the listing
// carried, which is none for the XML fallback.
func (s *SpeedtestNet) BestServer(ctx context.Context) (*Server, error) {
	if _, err := s.client.FetchUserInfoContext(ctx); err != nil {
		s.log.Debug("cannot fetch user location", zap.Error(err))
	}
	list, err := s.client.FetchServerListContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch server list: %w", err)
	}
	if len(list) == 0 {
		return nil, nil
	}

	n := min(candidates, len(list))
	var best *speedtest.Server
	for _, srv := range list[:n] {
		if err := srv.PingTestContext(ctx, nil); err != nil {
			s.log.Debug("candidate unreachable", zap.String("server_id", srv.ID), zap.Error(err))
			continue
		}
		if best == nil || srv.Latency < best.Latency {
			best = srv
		}
	}
	if best == nil {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ping candidates: %w", err)
		}
		return nil, nil
	}

	return s.remember(best), nil
}

// remember caches srv for the measurement phases.
func (s *SpeedtestNet) remember(srv *speedtest.Server) *Server {
	s.mu.Lock()
	s.servers[srv.ID] = srv
	s.mu.Unlock()

	return &Server{
		ID:       srv.ID,
		Host:     srv.Host,
		Name:     srv.Name,
		Sponsor:  srv.Sponsor,
		Country:  srv.Country,
		Distance: srv.Distance,
	}
}

func (s *SpeedtestNet) lookup(srv Server) (*speedtest.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found, ok := s.servers[srv.ID]
	if !ok {
		return nil, fmt.Errorf("server %s was not returned by discovery", srv.ID)
	}
	return found, nil
}

// Latency implements Meter. The latency measured while choosing the
// server is reused when available.
func (s *SpeedtestNet) Latency(ctx context.Context, srv Server) (time.Duration, error) {
	target, err := s.lookup(srv)
	if err != nil {
		return 0, err
	}
	if target.Latency > 0 {
		return target.Latency, nil
	}
	if err := target.PingTestContext(ctx, nil); err != nil {
		return 0, fmt.Errorf("ping: %w", err)
	}
	return target.Latency, nil
}

// Download implements Meter. The client reports a negative rate when too
// many transfers failed; that is a failed measurement, not a result.
func (s *SpeedtestNet) Download(ctx context.Context, srv Server) (Throughput, error) {
	target, err := s.lookup(srv)
	if err != nil {
		return Throughput{}, err
	}
	s.client.Reset()
	if err := target.DownloadTestContext(ctx); err != nil {
		return Throughput{}, fmt.Errorf("download: %w", err)
	}
	if target.DLSpeed < 0 {
		return Throughput{}, errors.New("download: no successful transfers")
	}
	return Throughput{
		BitsPerSecond: float64(target.DLSpeed) * 8,
		Bytes:         s.client.GetTotalDownload(),
	}, nil
}

// Upload implements Meter.
func (s *SpeedtestNet) Upload(ctx context.Context, srv Server) (Throughput, error) {
	target, err := s.lookup(srv)
	if err != nil {
		return Throughput{}, err
	}
	s.client.Reset()
	if err := target.UploadTestContext(ctx); err != nil {
		return Throughput{}, fmt.Errorf("upload: %w", err)
	}
	if target.ULSpeed < 0 {
		return Throughput{}, errors.New("upload: no successful transfers")
	}
	return Throughput{
		BitsPerSecond: float64(target.ULSpeed) * 8,
		Bytes:         s.client.GetTotalUpload(),
	}, nil
}
