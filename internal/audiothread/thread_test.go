package audiothread

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiopool/internal/conf"
	"github.com/tphakala/audiopool/internal/errors"
	"github.com/tphakala/audiopool/internal/observability/metrics"
)

func testSettings() conf.AudioThreadSettings {
	return conf.AudioThreadSettings{
		Enabled:   true,
		Interval:  time.Millisecond,
		QueueSize: 8,
	}
}

func startThread(t *testing.T) *Thread {
	t.Helper()
	th := New(testSettings())
	require.NoError(t, th.Start(t.Context()))
	t.Cleanup(func() {
		if th.IsRunning() {
			assert.NoError(t, th.Stop())
		}
	})
	return th
}

func TestRunInlineWhenStopped(t *testing.T) {
	th := New(testSettings())

	ran := false
	th.Run(func() { ran = true })

	assert.True(t, ran, "command must run before Run returns")
	assert.False(t, th.IsAudioThread())
	assert.Equal(t, 0, th.QueueDepth())
}

func TestRunPreservesFIFOOrder(t *testing.T) {
	th := startThread(t)

	var mu sync.Mutex
	var order []int
	for i := range 50 {
		th.Run(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	require.NoError(t, th.RunSync(t.Context(), func() {}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 50)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestIsAudioThread(t *testing.T) {
	th := startThread(t)

	var inside atomic.Bool
	require.NoError(t, th.RunSync(t.Context(), func() {
		inside.Store(th.IsAudioThread())
	}))

	assert.True(t, inside.Load())
	assert.False(t, th.IsAudioThread())
}

func TestRunFromAudioThreadExecutesInline(t *testing.T) {
	th := startThread(t)

	var order []string
	require.NoError(t, th.RunSync(t.Context(), func() {
		order = append(order, "outer-start")
		th.Run(func() { order = append(order, "nested") })
		order = append(order, "outer-end")
	}))

	assert.Equal(t, []string{"outer-start", "nested", "outer-end"}, order)
}

func TestStopDrainsQueuedCommands(t *testing.T) {
	th := startThread(t)

	release := make(chan struct{})
	th.Run(func() { <-release })

	var count atomic.Int32
	for range 10 {
		th.Run(func() { count.Add(1) })
	}
	close(release)

	require.NoError(t, th.Stop())
	assert.Equal(t, int32(10), count.Load())

	// After stop commands run inline again
	th.Run(func() { count.Add(1) })
	assert.Equal(t, int32(11), count.Load())
}

func TestStartStopStateErrors(t *testing.T) {
	th := New(testSettings())
	assert.ErrorIs(t, th.Stop(), ErrNotRunning)

	require.NoError(t, th.Start(t.Context()))
	assert.ErrorIs(t, th.Start(t.Context()), ErrAlreadyRunning)
	require.NoError(t, th.Stop())
	assert.False(t, th.IsRunning())

	// A thread can be restarted
	require.NoError(t, th.Start(t.Context()))
	require.NoError(t, th.Stop())
}

func TestCommandPanicIsContained(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := metrics.NewDevicePoolMetrics(registry)
	require.NoError(t, err)

	th := New(testSettings(), WithMetrics(m))
	require.NoError(t, th.Start(t.Context()))
	defer func() { require.NoError(t, th.Stop()) }()

	err = th.RunSync(t.Context(), func() { panic("boom") })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommandPanicked)
	assert.Contains(t, err.Error(), "boom")
	assert.True(t, errors.IsCategory(err, errors.CategoryAudioThread))

	// Thread is still alive
	var ran atomic.Bool
	require.NoError(t, th.RunSync(t.Context(), func() { ran.Store(true) }))
	assert.True(t, ran.Load())
}

func TestRunSyncContextCancelled(t *testing.T) {
	th := startThread(t)

	release := make(chan struct{})
	th.Run(func() { <-release })

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()

	var ran atomic.Bool
	err := th.RunSync(ctx, func() { ran.Store(true) })
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, th.Stop())
	assert.True(t, ran.Load(), "cancelled wait does not cancel the command")
}

func TestTickRunsAfterQueue(t *testing.T) {
	th := New(testSettings())

	ticks := make(chan bool, 1)
	var queued atomic.Bool
	th.SetTick(func() {
		select {
		case ticks <- queued.Load():
		default:
		}
	})
	require.NoError(t, th.Start(t.Context()))
	defer func() { require.NoError(t, th.Stop()) }()

	th.Run(func() { queued.Store(true) })

	deadline := time.After(2 * time.Second)
	for {
		select {
		case sawQueued := <-ticks:
			if sawQueued {
				return
			}
		case <-deadline:
			t.Fatal("tick never observed the queued command")
		}
	}
}
