// File: internal/wait/wait_test.go
package wait

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestUntil_ReturnsValueWhenConditionHolds(t *testing.T) {
	var calls atomic.Int32
	got, err := Until(context.Background(), Options{Timeout: time.Second, Interval: 5 * time.Millisecond},
		func(ctx context.Context) ([]string, bool, error) {
			n := calls.Add(1)
			msgs := make([]string, n)
			return msgs, n >= 3, nil
		})

	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.EqualValues(t, 3, calls.Load())
}

func TestUntil_TimeoutCarriesDescription(t *testing.T) {
	start := time.Now()
	_, err := Until(context.Background(), Options{
		Timeout:     60 * time.Millisecond,
		Interval:    10 * time.Millisecond,
		Description: "a new bot message to appear",
	}, func(ctx context.Context) (int, bool, error) {
		return 0, false, nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, "a new bot message to appear", timeoutErr.Description)
	assert.Equal(t, 60*time.Millisecond, timeoutErr.Timeout)
	assert.Contains(t, err.Error(), "waiting for a new bot message to appear")
	assert.Less(t, time.Since(start), time.Second)
}

func TestUntil_PacesProbes(t *testing.T) {
	var calls atomic.Int32
	_ = For(context.Background(), Options{Timeout: 100 * time.Millisecond, Interval: 25 * time.Millisecond},
		func(ctx context.Context) (bool, error) {
			calls.Add(1)
			return false, nil
		})

	// 100ms at one probe per 25ms is about 5 probes; a busy loop would be thousands.
	assert.LessOrEqual(t, calls.Load(), int32(7))
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestUntil_FatalProbeErrorStopsImmediately(t *testing.T) {
	boom := errors.New("target closed")
	var calls atomic.Int32

	_, err := Until(context.Background(), Options{Timeout: time.Second, Interval: time.Millisecond},
		func(ctx context.Context) (bool, bool, error) {
			calls.Add(1)
			return false, false, boom
		})

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.EqualValues(t, 1, calls.Load())
}

func TestUntil_RetryableErrorsAreKeptAsLast(t *testing.T) {
	transient := errors.New("element not found")
	_, err := Until(context.Background(), Options{
		Timeout:     40 * time.Millisecond,
		Interval:    5 * time.Millisecond,
		Description: "send button to be clickable",
		Retry:       func(err error) bool { return errors.Is(err, transient) },
	}, func(ctx context.Context) (bool, bool, error) {
		return false, false, transient
	})

	require.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, transient, "the last probe error is unwrapped")
	assert.Contains(t, err.Error(), "last error: element not found")
}

func TestUntil_ParentCancellationIsNotATimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := For(ctx, Options{Timeout: 5 * time.Second, Interval: 5 * time.Millisecond},
		func(ctx context.Context) (bool, error) { return false, nil })

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultTimeout, o.Timeout)
	assert.Equal(t, DefaultInterval, o.Interval)
	assert.Equal(t, "condition", o.Description)
}

func TestUntil_StalledFinalProbeStillTimesOut(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var calls atomic.Int32
	start := time.Now()
	_, err := Until(parent, Options{
		Timeout:     250 * time.Millisecond,
		Interval:    200 * time.Millisecond,
		Description: "the chat panel to become visible",
	}, func(ctx context.Context) (bool, bool, error) {
		if calls.Add(1) >= 3 {
			// A hung CDP call: returns only when its context ends.
			<-ctx.Done()
			return false, false, ctx.Err()
		}
		return false, false, nil
	})

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "the chat panel to become visible", te.Description)
	assert.NoError(t, te.Last, "the grace deadline is not reported as a probe error")
	assert.NoError(t, parent.Err())
	assert.Less(t, time.Since(start), time.Second)
	assert.EqualValues(t, 3, calls.Load())
}
