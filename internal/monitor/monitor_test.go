package monitor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(pct float64, err error) Sampler {
	return func(context.Context) (float64, error) { return pct, err }
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name  string
		usage float64
		err   error
		want  bool
	}{
		{"below threshold", 42, nil, false},
		{"at threshold", 70, nil, false},
		{"above threshold", 91.5, nil, true},
		{"sample error", 99, errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			done := make(chan struct{}, 1)
			m := New(70, time.Second, func(context.Context) error {
				calls.Add(1)
				done <- struct{}{}
				return nil
			}, WithSampler(fixed(tt.usage, tt.err)))

			assert.Equal(t, tt.want, m.Check(context.Background()))
			if tt.want {
				<-done
				assert.Eventually(t, func() bool { return !m.Restarting() }, time.Second, 5*time.Millisecond)
				assert.EqualValues(t, 1, calls.Load())
			} else {
				assert.Zero(t, calls.Load())
			}
		})
	}
}

func TestCheck_OneRestartAtATime(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	m := New(50, time.Second, func(context.Context) error {
		calls.Add(1)
		<-release
		return errors.New("supervisor unreachable")
	}, WithSampler(fixed(99, nil)))

	require.True(t, m.Check(context.Background()))
	assert.True(t, m.Restarting())
	assert.False(t, m.Check(context.Background()))
	assert.False(t, m.Check(context.Background()))

	close(release)
	assert.Eventually(t, func() bool { return !m.Restarting() }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())

	// A failed restart clears the flag so the next spike retries.
	assert.True(t, m.Check(context.Background()))
}

func TestRun_StopsOnCancel(t *testing.T) {
	var samples atomic.Int32
	restarted := make(chan struct{})
	var once sync.Once
	m := New(10, 5*time.Millisecond, func(context.Context) error {
		once.Do(func() { close(restarted) })
		return nil
	}, WithSampler(func(context.Context) (float64, error) {
		samples.Add(1)
		return 80, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(stopped)
	}()

	select {
	case <-restarted:
	case <-time.After(time.Second):
		t.Fatal("restart not triggered")
	}
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, samples.Load(), int32(2))
}

func TestRun_LogsBaselineSampleError(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	m := New(90, time.Hour, func(context.Context) error { return nil },
		WithSampler(fixed(0, errors.New("no /proc/stat"))))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Run(ctx)

	assert.Contains(t, buf.String(), "cpu monitor baseline sample failed")
	assert.Contains(t, buf.String(), "no /proc/stat")
}

func TestNew_DefaultInterval(t *testing.T) {
	m := New(70, 0, nil)
	assert.Equal(t, defaultInterval, m.interval)
	assert.NotNil(t, m.sample)
}
