// Package soundbuffer decodes sound files into PCM buffers shared by every
// audio device.
package soundbuffer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Buffer holds decoded samples for one sound. It implements the device
// pool's BufferResource. Until WaitForDecode returns the samples may still
// be decoding in the background.
type Buffer struct {
	name string
	path string

	id       atomic.Int64
	released atomic.Bool
	done     chan struct{}

	mu  sync.RWMutex
	pcm PCM
	err error
}

// NewBuffer returns an already decoded buffer.
func NewBuffer(name string, pcm *PCM) *Buffer {
	b := newPendingBuffer(name, "")
	b.complete(pcm, nil)
	return b
}

func newPendingBuffer(name, path string) *Buffer {
	return &Buffer{
		name: name,
		path: path,
		done: make(chan struct{}),
	}
}

// complete publishes the decode result and wakes WaitForDecode callers.
func (b *Buffer) complete(pcm *PCM, err error) {
	b.mu.Lock()
	if pcm != nil {
		b.pcm = *pcm
	}
	b.err = err
	b.mu.Unlock()
	close(b.done)
}

func (b *Buffer) ResourceID() int { return int(b.id.Load()) }

func (b *Buffer) SetResourceID(id int) { b.id.Store(int64(id)) }

func (b *Buffer) ResourceName() string { return b.name }

// Path returns the file the buffer was decoded from, empty for in-memory buffers.
func (b *Buffer) Path() string { return b.path }

// Size returns the resident sample memory in bytes.
func (b *Buffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pcm.Samples) * 4
}

// WaitForDecode blocks until decoding has finished.
func (b *Buffer) WaitForDecode() {
	<-b.done
}

// Decoded reports whether decoding has finished.
func (b *Buffer) Decoded() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Err returns the decode error, nil while decoding or on success.
func (b *Buffer) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// Release drops the samples. Mixers must have stopped reading the buffer.
func (b *Buffer) Release() {
	b.WaitForDecode()
	b.released.Store(true)
	b.mu.Lock()
	b.pcm.Samples = nil
	b.mu.Unlock()
}

// Released reports whether Release has been called.
func (b *Buffer) Released() bool {
	return b.released.Load()
}

// PCM returns the decoded audio. The returned samples must not be modified.
func (b *Buffer) PCM() PCM {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pcm
}

// Duration returns the play length at the buffer's own sample rate.
func (b *Buffer) Duration() time.Duration {
	pcm := b.PCM()
	if pcm.SampleRate == 0 {
		return 0
	}
	return time.Duration(pcm.Frames()) * time.Second / time.Duration(pcm.SampleRate)
}

// Describe renders one listing line. Long names include the source path.
func (b *Buffer) Describe(longNames bool) string {
	pcm := b.PCM()
	name := b.name
	if longNames && b.path != "" {
		name = b.path
	}
	state := ""
	switch {
	case b.Released():
		state = " (released)"
	case !b.Decoded():
		state = " (decoding)"
	}
	return fmt.Sprintf("%8.2fkb %dch %6dHz %6.2fs %s%s",
		float64(len(pcm.Samples)*4)/1024,
		pcm.Channels,
		pcm.SampleRate,
		b.Duration().Seconds(),
		name,
		state)
}
