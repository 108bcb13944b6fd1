package soundbuffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBufferLifecycle(t *testing.T) {
	t.Parallel()

	b := NewBuffer("tone", &PCM{
		Samples:    make([]float32, 48000*2),
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	})

	assert.True(t, b.Decoded())
	b.WaitForDecode()
	assert.NoError(t, b.Err())
	assert.Equal(t, 48000*2*4, b.Size())
	assert.Equal(t, time.Second, b.Duration())
	assert.Equal(t, "tone", b.ResourceName())

	b.SetResourceID(9)
	assert.Equal(t, 9, b.ResourceID())

	b.Release()
	assert.True(t, b.Released())
	assert.Zero(t, b.Size())
	assert.Contains(t, b.Describe(false), "(released)")
}

func TestBufferPendingUntilComplete(t *testing.T) {
	t.Parallel()

	b := newPendingBuffer("late", "sounds/late.wav")
	assert.False(t, b.Decoded())
	assert.Contains(t, b.Describe(true), "sounds/late.wav (decoding)")

	go b.complete(&PCM{Samples: []float32{0, 0}, SampleRate: 8000, Channels: 1}, nil)
	b.WaitForDecode()

	assert.True(t, b.Decoded())
	assert.Equal(t, 8, b.Size())
	desc := b.Describe(false)
	assert.Contains(t, desc, "late")
	assert.NotContains(t, desc, "sounds/")
	assert.Contains(t, desc, "1ch")
}

func TestWave(t *testing.T) {
	t.Parallel()

	w := NewWave("assets/sfx/Explosion.Big.wav")
	assert.Equal(t, "Explosion.Big", w.Name())
	assert.Equal(t, "assets/sfx/Explosion.Big.wav", w.Path())
	assert.Zero(t, w.ResourceID())
	w.SetResourceID(3)
	assert.Equal(t, 3, w.ResourceID())
}
