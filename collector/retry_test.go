package collector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"netspeedlogger/storage"
)

var fixedNow = time.Date(2024, 6, 1, 8, 0, 0, 0, time.Local)

func newTestRetrier(p Prober, policy Policy) (*Retrier, *[]time.Duration) {
	var slept []time.Duration
	r := NewRetrier(p, policy, nil).WithClock(func() time.Time { return fixedNow })
	r.Sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return r, &slept
}

func TestRetrierSucceedsFirstTime(t *testing.T) {
	p := &scriptedProber{steps: []func() (Raw, error){succeed(validRaw())}}
	r, slept := newTestRetrier(p, DefaultPolicy())

	rec, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)
	assert.Empty(t, *slept)
	assert.Equal(t, []time.Duration{15 * time.Second}, p.timeouts)
	assert.Equal(t, storage.FormatTimestamp(fixedNow), rec.Timestamp)
	assert.False(t, rec.Degraded())
}

func TestRetrierRecoversFromTransientFailures(t *testing.T) {
	p := &scriptedProber{steps: []func() (Raw, error){
		fail(KindConfigRetrieval),
		fail(KindNoServerFound),
		succeed(validRaw()),
	}}
	r, slept := newTestRetrier(p, DefaultPolicy())

	rec, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, *slept)
	assert.Equal(t, 93012345.6, rec.DownloadSpeed)
}

func TestRetrierDegradesAfterBudget(t *testing.T) {
	for _, kind := range []Kind{KindConfigRetrieval, KindNoServerFound, KindMeasurement} {
		t.Run(kind.String(), func(t *testing.T) {
			p := &scriptedProber{steps: []func() (Raw, error){fail(kind)}}
			r, slept := newTestRetrier(p, Policy{MaxRetries: 3, Timeout: time.Second, Backoff: 7 * time.Second})

			rec, err := r.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 3, p.calls)
			// no sleep after the last attempt
			assert.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second}, *slept)

			assert.Zero(t, rec.DownloadSpeed)
			assert.Zero(t, rec.UploadSpeed)
			assert.Zero(t, rec.BytesSent)
			assert.Zero(t, rec.BytesReceived)
			assert.Nil(t, rec.Ping)
			assert.Nil(t, rec.ServerHost)
			assert.Nil(t, rec.ServerID)
			assert.NotEmpty(t, rec.Timestamp)
		})
	}
}

func TestRetrierMalformedResultIsFatal(t *testing.T) {
	bad := validRaw()
	bad["ping"] = "12ms"
	p := &scriptedProber{steps: []func() (Raw, error){succeed(bad)}}
	r, slept := newTestRetrier(p, DefaultPolicy())

	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrMalformedResult)
	assert.Equal(t, 1, p.calls)
	assert.Empty(t, *slept)
}

func TestRetrierNonTransientProbeErrorIsFatal(t *testing.T) {
	p := &scriptedProber{steps: []func() (Raw, error){
		func() (Raw, error) { return nil, context.Canceled },
	}}
	r, _ := newTestRetrier(p, DefaultPolicy())

	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls)
}

func TestRetrierZeroRetriesMeansOneAttempt(t *testing.T) {
	p := &scriptedProber{steps: []func() (Raw, error){fail(KindNoServerFound)}}
	r, _ := newTestRetrier(p, Policy{MaxRetries: 0})

	rec, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)
	assert.True(t, rec.Degraded())
}

func TestRetrierSleepHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &scriptedProber{steps: []func() (Raw, error){fail(KindConfigRetrieval)}}
	r := NewRetrier(p, Policy{MaxRetries: 3, Backoff: time.Hour}, nil)

	_, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls)
}

func TestRetrierLogsFailedAttempts(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := &scriptedProber{steps: []func() (Raw, error){fail(KindConfigRetrieval)}}
	r := NewRetrier(p, Policy{MaxRetries: 2}, zap.New(core))
	r.Sleep = func(context.Context, time.Duration) error { return nil }

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	warns := logs.FilterMessage("speedtest attempt failed").All()
	require.Len(t, warns, 2)
	assert.Equal(t, int64(1), warns[0].ContextMap()["attempt"])
	assert.NotEmpty(t, warns[0].ContextMap()["err_class"])
	assert.Equal(t, 1, logs.FilterMessage("failed running speed test; returning zero values").Len())
}

// timeout=0 and a single attempt against a discovery service that cannot
// be reached.
func TestRunUnreachableDiscoveryYieldsDegradedRecord(t *testing.T) {
	finder := funcFinder(func(ctx context.Context) (*Server, error) {
		<-ctx.Done()
		return nil, errors.New("cannot retrieve speedtest configuration")
	})
	runner := NewRunner(finder, goodMeter(), nil)
	r := NewRetrier(runner, Policy{MaxRetries: 1, Timeout: 0, Backoff: DefaultBackoff}, nil)

	before := time.Now()
	rec, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, rec.DownloadSpeed)
	assert.Zero(t, rec.UploadSpeed)
	assert.Zero(t, rec.BytesSent)
	assert.Zero(t, rec.BytesReceived)
	assert.Nil(t, rec.Ping)
	assert.Nil(t, rec.ServerHost)
	assert.Nil(t, rec.ServerID)
	assert.GreaterOrEqual(t, rec.Timestamp, storage.FormatTimestamp(before.Add(-time.Microsecond)))
}

func TestRunAndStoreAppendsDegradedRecord(t *testing.T) {
	store := storage.NewSQLite(filepath.Join(t.TempDir(), "data"), nil)
	p := &scriptedProber{steps: []func() (Raw, error){fail(KindNoServerFound)}}
	r, _ := newTestRetrier(p, Policy{MaxRetries: 2})

	rec, err := r.RunAndStore(context.Background(), store)
	require.NoError(t, err)
	assert.Positive(t, rec.ID)

	rs, err := store.All(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, rs.Records, 1)
	assert.True(t, rs.Records[0].Degraded())
}

func TestRunAndStoreSuccessiveTimestampsDoNotDecrease(t *testing.T) {
	store := storage.NewSQLite(filepath.Join(t.TempDir(), "data"), nil)
	p := &scriptedProber{steps: []func() (Raw, error){succeed(validRaw())}}
	r := NewRetrier(p, DefaultPolicy(), nil)

	var prev string
	for i := 0; i < 3; i++ {
		rec, err := r.RunAndStore(context.Background(), store)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rec.Timestamp, prev)
		prev = rec.Timestamp
	}
}
