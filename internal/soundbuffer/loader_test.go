package soundbuffer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiopool/internal/devicepool"
	"github.com/tphakala/audiopool/internal/errors"
)

func newTracker(t *testing.T) *devicepool.ResourceTracker {
	t.Helper()
	return devicepool.New(nil).Resources()
}

func TestLoaderLoad(t *testing.T) {
	t.Parallel()

	rt := newTracker(t)
	l := NewLoader(rt)
	t.Cleanup(l.Wait)

	path := writeWAV(t, "click.wav", 48000, 16, 1, []int{0, 8192, 16384, 32767})
	wave := NewWave(path)

	buf, err := l.Load(t.Context(), wave)
	require.NoError(t, err)
	buf.WaitForDecode()
	require.NoError(t, buf.Err())

	assert.Equal(t, "click", buf.ResourceName())
	assert.Equal(t, 1, buf.ResourceID())
	assert.Equal(t, 1, wave.ResourceID())
	pcm := buf.PCM()
	assert.Equal(t, 4, pcm.Frames())
	assert.InDelta(t, 0.25, pcm.Samples[1], 1e-6)

	tracked, ok := rt.Lookup(1)
	require.True(t, ok)
	assert.Same(t, buf, tracked)
}

func TestLoaderCollapsesConcurrentLoads(t *testing.T) {
	t.Parallel()

	rt := newTracker(t)
	l := NewLoader(rt)
	t.Cleanup(l.Wait)

	path := writeWAV(t, "shared.wav", 22050, 16, 2, make([]int, 2048))

	const loaders = 8
	buffers := make([]*Buffer, loaders)
	var wg sync.WaitGroup
	for i := range loaders {
		wg.Go(func() {
			buf, err := l.Load(context.Background(), NewWave(path))
			assert.NoError(t, err)
			buffers[i] = buf
		})
	}
	wg.Wait()

	for _, buf := range buffers {
		assert.Same(t, buffers[0], buf)
	}
	assert.Equal(t, 1, rt.Len())
}

func TestLoaderReloadsAfterFree(t *testing.T) {
	t.Parallel()

	rt := newTracker(t)
	l := NewLoader(rt)
	t.Cleanup(l.Wait)

	wave := NewWave(writeWAV(t, "again.wav", 8000, 16, 1, []int{1, 2, 3}))

	first, err := l.Load(t.Context(), wave)
	require.NoError(t, err)
	rt.Free(wave)
	assert.True(t, first.Released())
	assert.Zero(t, wave.ResourceID())

	second, err := l.Load(t.Context(), wave)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, second.ResourceID())
	assert.Equal(t, 2, wave.ResourceID())
}

func TestLoaderErrors(t *testing.T) {
	t.Parallel()

	l := NewLoader(nil)
	t.Cleanup(l.Wait)
	dir := t.TempDir()

	_, err := l.Load(t.Context(), NewWave(filepath.Join(dir, "missing.wav")))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	_, err = l.Load(t.Context(), NewWave(filepath.Join(dir, "song.ogg")))
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	bad := filepath.Join(dir, "bad.wav")
	require.NoError(t, os.WriteFile(bad, []byte("RIFF but not really"), 0o600))
	buf, err := l.Load(t.Context(), NewWave(bad))
	require.NoError(t, err, "decode errors surface on the buffer")
	buf.WaitForDecode()
	require.ErrorIs(t, buf.Err(), ErrInvalidAudio)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = l.Load(ctx, NewWave(bad))
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadAll(t *testing.T) {
	t.Parallel()

	rt := newTracker(t)
	l := NewLoader(rt)
	t.Cleanup(l.Wait)

	var waves []*Wave
	for _, name := range []string{"a.wav", "b.wav", "c.wav", "d.wav"} {
		waves = append(waves, NewWave(writeWAV(t, name, 16000, 16, 1, make([]int, 160))))
	}

	buffers, err := l.LoadAll(t.Context(), waves, 2)
	require.NoError(t, err)
	require.Len(t, buffers, 4)
	for i, buf := range buffers {
		assert.Equal(t, waves[i].Name(), buf.ResourceName())
		assert.True(t, buf.Decoded())
		assert.Equal(t, 160*4, buf.Size())
	}
	assert.Equal(t, 4, rt.Len())
}

func TestLoadAllFailsOnBadFile(t *testing.T) {
	t.Parallel()

	l := NewLoader(nil)
	t.Cleanup(l.Wait)

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.wav")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o600))

	waves := []*Wave{
		NewWave(writeWAV(t, "ok.wav", 16000, 16, 1, make([]int, 16))),
		NewWave(bad),
	}
	_, err := l.LoadAll(t.Context(), waves, 0)
	require.ErrorIs(t, err, ErrInvalidAudio)
	assert.Contains(t, err.Error(), "bad.wav")
}

func TestLoaderRetriesAfterFailedDecode(t *testing.T) {
	t.Parallel()

	rt := newTracker(t)
	l := NewLoader(rt)
	t.Cleanup(l.Wait)

	path := filepath.Join(t.TempDir(), "swap.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF but not really"), 0o600))

	failed, err := l.Load(t.Context(), NewWave(path))
	require.NoError(t, err)
	failed.WaitForDecode()
	require.ErrorIs(t, failed.Err(), ErrInvalidAudio)

	good, err := os.ReadFile(writeWAV(t, "good.wav", 8000, 16, 1, []int{1, 2, 3, 4}))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, good, 0o600))

	retried, err := l.Load(t.Context(), NewWave(path))
	require.NoError(t, err)
	retried.WaitForDecode()
	require.NoError(t, retried.Err())

	assert.NotSame(t, failed, retried)
	assert.True(t, failed.Released(), "failed buffer is freed from the tracker")
	retriedPCM := retried.PCM()
	assert.Equal(t, 4, retriedPCM.Frames())
	assert.Equal(t, 1, rt.Len())
}

func TestLoaderDecodeOutlivesCallerContext(t *testing.T) {
	t.Parallel()

	l := NewLoader(newTracker(t))
	t.Cleanup(l.Wait)

	ctx, cancel := context.WithCancel(t.Context())
	buf, err := l.Load(ctx, NewWave(writeWAV(t, "long.wav", 8000, 16, 1, make([]int, 8000))))
	require.NoError(t, err)
	cancel()

	buf.WaitForDecode()
	require.NoError(t, buf.Err())
	pcm := buf.PCM()
	assert.Equal(t, 8000, pcm.Frames())
}
