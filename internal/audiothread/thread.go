// Package audiothread runs the dedicated audio rendering thread and its command queue.
//
// Control code hands work to the audio thread as zero-argument commands.
// Commands run in FIFO order, drained once per iteration before the tick
// function (normally the device pool update pass) is called.
package audiothread

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/audiopool/internal/conf"
	"github.com/tphakala/audiopool/internal/errors"
	"github.com/tphakala/audiopool/internal/logging"
	"github.com/tphakala/audiopool/internal/observability/metrics"
)

// Command is a unit of work executed on the audio thread.
type Command func()

// Thread owns the audio rendering goroutine, locked to its own OS thread.
// All exported methods are safe for concurrent use.
type Thread struct {
	interval time.Duration
	priority int
	logger   *slog.Logger
	metrics  *metrics.DevicePoolMetrics

	mu      sync.Mutex
	queue   []Command
	running bool
	tick    func()

	// threadID is the OS thread (or goroutine) id of the audio goroutine, 0 when stopped.
	threadID atomic.Int64
	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
}

// Option configures a Thread.
type Option func(*Thread)

// WithLogger sets the logger used by the thread.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Thread) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics attaches pool metrics for command and queue depth reporting.
func WithMetrics(m *metrics.DevicePoolMetrics) Option {
	return func(t *Thread) {
		t.metrics = m
	}
}

// New creates a stopped audio thread. Until Start is called every command runs inline.
func New(settings conf.AudioThreadSettings, opts ...Option) *Thread {
	logger := logging.ForService("audiothread")
	if logger == nil {
		logger = slog.Default()
	}

	interval := settings.Interval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}

	t := &Thread{
		interval: interval,
		priority: settings.Priority,
		logger:   logger.With("component", "thread"),
		queue:    make([]Command, 0, max(settings.QueueSize, 16)),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetTick sets the function called once per iteration after the queue is drained.
// It may be changed while the thread runs; the change applies from the next iteration.
func (t *Thread) SetTick(fn func()) {
	t.mu.Lock()
	t.tick = fn
	t.mu.Unlock()
}

// Start launches the audio goroutine and blocks until it is pinned to its OS thread.
func (t *Thread) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return ErrAlreadyRunning
	}
	t.running = true
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	stop, done := t.stop, t.done
	t.mu.Unlock()

	ready := make(chan struct{})
	go t.loop(ready, stop, done)

	select {
	case <-ready:
	case <-ctx.Done():
		// The goroutine still starts; leave it running for Stop to reap.
		return ctx.Err()
	}

	t.logger.Info("audio thread started",
		"interval", t.interval,
		"priority", t.priority)
	return nil
}

// Stop stops the audio goroutine after draining every queued command.
// Commands issued after Stop run inline on the caller.
func (t *Thread) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return ErrNotRunning
	}
	t.running = false
	stop, done := t.stop, t.done
	t.mu.Unlock()

	close(stop)
	<-done

	t.logger.Info("audio thread stopped")
	return nil
}

// IsRunning reports whether the audio goroutine is active.
func (t *Thread) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// IsAudioThread reports whether the caller is executing on the audio thread.
func (t *Thread) IsAudioThread() bool {
	id := t.threadID.Load()
	return id != 0 && id == currentThreadID()
}

// Run executes cmd on the audio thread. When called from the audio thread,
// or while the thread is not running, cmd executes inline before Run returns;
// otherwise it is queued and Run returns immediately.
func (t *Thread) Run(cmd Command) {
	if cmd == nil {
		return
	}
	if t.IsAudioThread() || !t.enqueue(cmd) {
		t.execute(cmd)
	}
}

// RunSync executes cmd on the audio thread and waits for it to finish.
// A cancelled ctx stops the wait but not the queued command.
func (t *Thread) RunSync(ctx context.Context, cmd Command) error {
	if cmd == nil {
		return nil
	}
	if t.IsAudioThread() {
		return t.executeSync(cmd)
	}

	errCh := make(chan error, 1)
	if !t.enqueue(func() { errCh <- t.executeSync(cmd) }) {
		return t.executeSync(cmd)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component(ComponentAudioThread).
			Category(errors.CategoryCancellation).
			Context("operation", "run_sync").
			Build()
	}
}

// Pump executes every command queued so far and returns how many ran.
// It must only be called from the audio thread or while the thread is stopped.
func (t *Thread) Pump() int {
	t.mu.Lock()
	pending := t.queue
	t.queue = make([]Command, 0, cap(pending))
	t.mu.Unlock()

	for _, cmd := range pending {
		t.execute(cmd)
	}

	t.metrics.RecordAudioThreadCommands(len(pending))
	t.metrics.SetAudioThreadQueueDepth(t.QueueDepth())
	return len(pending)
}

// QueueDepth returns the number of commands waiting to run.
func (t *Thread) QueueDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// enqueue appends cmd to the queue while the thread is running.
// It returns false when the thread is stopped and nothing was queued.
func (t *Thread) enqueue(cmd Command) bool {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return false
	}
	t.queue = append(t.queue, cmd)
	depth := len(t.queue)
	t.mu.Unlock()

	t.metrics.SetAudioThreadQueueDepth(depth)

	select {
	case t.wake <- struct{}{}:
	default:
	}
	return true
}

// execute runs cmd, keeping the audio thread alive if it panics.
func (t *Thread) execute(cmd Command) {
	if err := t.executeSync(cmd); err != nil {
		t.logger.Error("audio thread command panicked", "error", err)
	}
}

func (t *Thread) executeSync(cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.metrics.RecordAudioThreadPanic()
			err = errors.Newf("audio thread command panicked: %v", r).
				Component(ComponentAudioThread).
				Category(errors.CategoryAudioThread).
				Context("resource", "audio_thread_command").
				Build()
		}
	}()
	cmd()
	return nil
}

func (t *Thread) loop(ready chan<- struct{}, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	t.threadID.Store(currentThreadID())
	defer t.threadID.Store(0)

	if t.priority != 0 {
		if err := setThreadPriority(t.priority); err != nil {
			t.logger.Warn("failed to raise audio thread priority",
				"priority", t.priority,
				"error", err)
		}
	}
	close(ready)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			// Commands queued before Stop flipped running are still owed a run.
			for t.Pump() > 0 {
			}
			return
		case <-t.wake:
			t.Pump()
		case <-ticker.C:
			t.Pump()
			t.mu.Lock()
			tick := t.tick
			t.mu.Unlock()
			if tick != nil {
				t.execute(tick)
			}
		}
	}
}
