package shopify

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// fakeClock advances virtual time whenever the controller sleeps, so tests
// never block on real timers.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time { return c.current }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.current = c.current.Add(d)
	return nil
}

func newTestController(t *testing.T, maxBucket, leakRate float64) (*RateController, *fakeClock) {
	t.Helper()
	rc, err := NewRateController(maxBucket, leakRate, testLogger())
	require.NoError(t, err)

	clock := &fakeClock{current: time.Now()}
	rc.now = clock.now
	rc.sleep = clock.sleep
	rc.lastLeak = clock.current
	return rc, clock
}

func TestNewRateController_InvalidInputs(t *testing.T) {
	_, err := NewRateController(0, 50, testLogger())
	assert.True(t, IsConfiguration(err))

	_, err = NewRateController(2000, 0, testLogger())
	assert.True(t, IsConfiguration(err))

	_, err = NewRateController(2000, -1, testLogger())
	assert.True(t, IsConfiguration(err))
}

func TestReserve_DebitsAvailable(t *testing.T) {
	rc, _ := newTestController(t, 2000, 100)

	require.NoError(t, rc.Reserve(context.Background(), 500))
	assert.InDelta(t, 1500, rc.Available(), 1)
}

func TestReserve_CostAboveBucketFailsFast(t *testing.T) {
	rc, _ := newTestController(t, 2000, 100)

	err := rc.Reserve(context.Background(), 2001)
	assert.True(t, IsConfiguration(err))
}

func TestReserve_WaitsForRefill(t *testing.T) {
	rc, clock := newTestController(t, 1000, 100)
	start := clock.current

	// Drain the bucket, then ask for more than remains.
	require.NoError(t, rc.Reserve(context.Background(), 1000))
	require.NoError(t, rc.Reserve(context.Background(), 200))

	// 200 points at 100/s needs at least two virtual seconds.
	assert.GreaterOrEqual(t, clock.current.Sub(start), 2*time.Second)
	assert.GreaterOrEqual(t, rc.Available(), 0.0)
}

func TestReserve_ContextCancellation(t *testing.T) {
	rc, _ := newTestController(t, 1000, 100)
	require.NoError(t, rc.Reserve(context.Background(), 1000))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rc.sleep = sleepContext

	err := rc.Reserve(ctx, 500)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAvailable_StaysWithinBounds(t *testing.T) {
	rc, clock := newTestController(t, 1000, 100)

	// A long idle period never overfills the bucket.
	clock.current = clock.current.Add(time.Hour)
	assert.Equal(t, 1000.0, rc.Available())

	// Draining never goes below zero.
	require.NoError(t, rc.Reserve(context.Background(), 1000))
	assert.GreaterOrEqual(t, rc.Available(), 0.0)
	assert.LessOrEqual(t, rc.Available(), 1000.0)
}

func TestRecordServerFeedback_OverwritesEstimates(t *testing.T) {
	rc, clock := newTestController(t, 2000, 100)

	rc.RecordServerFeedback(ThrottleStatus{
		CurrentlyAvailable: 300,
		RestoreRate:        50,
		MaximumAvailable:   1000,
	})

	assert.InDelta(t, 300, rc.Available(), 1)

	// Refill now follows the reported restore rate.
	clock.current = clock.current.Add(2 * time.Second)
	assert.InDelta(t, 400, rc.Available(), 1)
}

func TestRecordServerFeedback_IgnoresZeroSnapshot(t *testing.T) {
	rc, _ := newTestController(t, 2000, 100)

	rc.RecordServerFeedback(ThrottleStatus{})
	assert.InDelta(t, 2000, rc.Available(), 1)
}
