package supervisor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"default transport", DefaultTransportPolicy(), false},
		{"default bus", DefaultBusPolicy(), false},
		{"bounded without attempts", RetryPolicy{Mode: Bounded}, true},
		{"unknown mode", RetryPolicy{Mode: "sometimes", MaxAttempts: 1}, true},
		{"empty mode", RetryPolicy{}, true},
		{"negative interval", RetryPolicy{Mode: Unbounded, Interval: -time.Second}, true},
		{"growth without ceiling", RetryPolicy{Mode: Unbounded, Interval: time.Second, Multiplier: 2}, true},
		{"fixed delay without ceiling", RetryPolicy{Mode: Unbounded, Interval: time.Second, Multiplier: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryStopErrorEndsSequence(t *testing.T) {
	sentinel := errors.New("give up")
	sl := &recordingSleeper{}

	n, err := retry(context.Background(), RetryPolicy{Mode: Unbounded}, sl.sleep, func(ctx context.Context, n int) error {
		return stop(sentinel)
	})
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, sentinel)
	assert.Empty(t, sl.delays)
}

func TestRetryReturnsLastError(t *testing.T) {
	sl := &recordingSleeper{}
	n, err := retry(context.Background(), RetryPolicy{Mode: Bounded, MaxAttempts: 2, Interval: time.Second, Multiplier: 3}, sl.sleep,
		func(ctx context.Context, n int) error {
			return errors.New("attempt failed")
		})
	assert.Equal(t, 2, n)
	assert.EqualError(t, err, "attempt failed")
	assert.Equal(t, []time.Duration{time.Second}, sl.delays)
}

func TestRetryBackoffCap(t *testing.T) {
	p := RetryPolicy{Interval: time.Second, MaxInterval: 5 * time.Second, Multiplier: 2}
	d := p.Interval
	var got []time.Duration
	for i := 0; i < 5; i++ {
		d = p.next(d)
		got = append(got, d)
	}
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}, got)
}

func TestRetryBackoffNeverOverflows(t *testing.T) {
	policies := map[string]RetryPolicy{
		"no ceiling":   {Interval: time.Second, Multiplier: 10},
		"huge ceiling": {Interval: time.Second, MaxInterval: time.Duration(math.MaxInt64), Multiplier: 10},
	}
	for name, p := range policies {
		t.Run(name, func(t *testing.T) {
			d := p.Interval
			for i := 0; i < 200; i++ {
				d = p.next(d)
				require.Positive(t, d, "attempt %d", i)
			}
		})
	}

	p := policies["no ceiling"]
	d := p.Interval
	for i := 0; i < 50; i++ {
		d = p.next(d)
	}
	assert.Equal(t, fallbackMaxInterval, d)
}

func TestSleepContext(t *testing.T) {
	assert.True(t, SleepContext(context.Background(), 0))
	assert.True(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, SleepContext(ctx, time.Hour))
	assert.False(t, SleepContext(ctx, 0))
}
