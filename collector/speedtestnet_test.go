package collector

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/showwin/speedtest-go/speedtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadEndpoint returns an address nothing listens on.
func deadEndpoint(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// newDeadSpeedtestNet returns an adapter whose only known server refuses
// every connection.
func newDeadSpeedtestNet(t *testing.T) (*SpeedtestNet, *Server) {
	t.Helper()
	s := NewSpeedtestNet(nil)
	s.client.SetCaptureTime(300 * time.Millisecond)

	target, err := s.client.CustomServer("http://" + deadEndpoint(t))
	require.NoError(t, err)
	target.Latency = 5 * time.Millisecond
	return s, s.remember(target)
}

func TestSpeedtestNetFailedTransfersAreErrors(t *testing.T) {
	s, srv := newDeadSpeedtestNet(t)
	ctx := context.Background()

	_, err := s.Download(ctx, *srv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download")

	_, err = s.Upload(ctx, *srv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload")
}

func TestSpeedtestNetUnknownServer(t *testing.T) {
	s := NewSpeedtestNet(nil)

	_, err := s.Download(context.Background(), Server{ID: "4242"})
	require.Error(t, err)
	_, err = s.Latency(context.Background(), Server{ID: "4242"})
	require.Error(t, err)
}

func TestSpeedtestNetRememberKeepsDistance(t *testing.T) {
	s := NewSpeedtestNet(nil)

	got := s.remember(&speedtest.Server{ID: "7", Host: "st.example.net:8080", Sponsor: "ISP", Distance: 12.5})
	assert.Equal(t, &Server{ID: "7", Host: "st.example.net:8080", Sponsor: "ISP", Distance: 12.5}, got)

	target, err := s.lookup(*got)
	require.NoError(t, err)
	assert.Equal(t, "7", target.ID)
}

func TestUnreachableServerYieldsDegradedRecord(t *testing.T) {
	s, srv := newDeadSpeedtestNet(t)
	finder := funcFinder(func(context.Context) (*Server, error) { return srv, nil })

	runner := NewRunner(finder, s, nil)
	_, err := runner.Probe(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrMeasurement)
	assert.NotErrorIs(t, err, ErrMalformedResult)

	r, slept := newTestRetrier(runner, Policy{MaxRetries: 1, Timeout: time.Second})
	rec, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, *slept)
	assert.True(t, rec.Degraded())
	assert.Zero(t, rec.DownloadSpeed)
	assert.Zero(t, rec.UploadSpeed)
}
