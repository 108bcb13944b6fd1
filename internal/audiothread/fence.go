package audiothread

import (
	"context"
	"sync"

	"github.com/tphakala/audiopool/internal/errors"
)

// Fence is a one-shot completion barrier on the audio thread command queue.
// Begin queues a marker behind every command already queued; Wait returns
// once the marker has run.
type Fence struct {
	thread *Thread

	mu   sync.Mutex
	done chan struct{} // nil when no fence is outstanding
}

// NewFence creates a completed fence bound to thread.
func NewFence(thread *Thread) *Fence {
	return &Fence{thread: thread}
}

// Begin arms the fence. The marker is always queued, even when called from
// the audio thread, so it completes only after the commands ahead of it.
// While the thread is stopped the fence completes immediately.
func (f *Fence) Begin() {
	done := make(chan struct{})
	queued := f.thread.enqueue(func() { close(done) })

	f.mu.Lock()
	if queued {
		f.done = done
	} else {
		f.done = nil
	}
	f.mu.Unlock()
}

// IsComplete reports whether the last Begin has been reached by the audio thread.
func (f *Fence) IsComplete() bool {
	done := f.current()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// Wait blocks until the fence completes.
func (f *Fence) Wait() {
	_ = f.WaitContext(context.Background())
}

// WaitContext blocks until the fence completes or ctx is done. On the audio
// thread it pumps the queue inline instead of blocking on itself.
func (f *Fence) WaitContext(ctx context.Context) error {
	done := f.current()
	if done == nil {
		return nil
	}

	if f.thread.IsAudioThread() {
		for !f.IsComplete() {
			if f.thread.Pump() == 0 {
				break
			}
		}
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component(ComponentAudioThread).
			Category(errors.CategoryTimeout).
			Context("operation", "fence_wait").
			Build()
	}
}

func (f *Fence) current() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}
