package soundbuffer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tphakala/audiopool/internal/devicepool"
	"github.com/tphakala/audiopool/internal/errors"
	"github.com/tphakala/audiopool/internal/logging"
)

// Tracker registers decoded buffers under resource ids.
type Tracker interface {
	Track(asset devicepool.Asset, buf devicepool.BufferResource) int
	FreeBufferResource(buf devicepool.BufferResource)
}

// Loader decodes wave files into tracked buffers. Each path is decoded once
// while its buffer is alive; concurrent loads of one path share a buffer.
type Loader struct {
	tracker Tracker
	logger  *slog.Logger

	group singleflight.Group
	wg    sync.WaitGroup

	mu     sync.Mutex
	byPath map[string]*Buffer
}

// NewLoader returns a Loader that registers buffers with tracker, which may be nil.
func NewLoader(tracker Tracker) *Loader {
	logger := logging.ForService("soundbuffer")
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		tracker: tracker,
		logger:  logger.With("component", "loader"),
		byPath:  make(map[string]*Buffer),
	}
}

// Load returns the buffer for wave, starting a background decode if needed.
// The file is opened before Load returns; decode errors are reported by
// the buffer's Err after WaitForDecode.
func (l *Loader) Load(ctx context.Context, wave *Wave) (*Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err, _ := l.group.Do(wave.Path(), func() (any, error) {
		if buf := l.cached(wave.Path()); buf != nil {
			return buf, nil
		}
		return l.start(ctx, wave)
	})
	if err != nil {
		return nil, err
	}

	buf := v.(*Buffer)
	wave.SetResourceID(buf.ResourceID())
	return buf, nil
}

// cached returns the live buffer for path. Released buffers and buffers
// whose decode failed are dropped so the next load starts over.
func (l *Loader) cached(path string) *Buffer {
	l.mu.Lock()
	buf, ok := l.byPath[path]
	if !ok {
		l.mu.Unlock()
		return nil
	}
	failed := buf.Decoded() && buf.Err() != nil
	if !failed && !buf.Released() {
		l.mu.Unlock()
		return buf
	}
	delete(l.byPath, path)
	l.mu.Unlock()

	if failed && l.tracker != nil {
		l.tracker.FreeBufferResource(buf)
	}
	return nil
}

func (l *Loader) start(ctx context.Context, wave *Wave) (*Buffer, error) {
	format, err := FormatFromPath(wave.Path())
	if err != nil {
		return nil, err
	}

	f, err := os.Open(wave.Path())
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentSoundBuffer).
			Category(errors.CategoryFileIO).
			FileContext(wave.Path(), 0).
			Context("operation", "open_sound").
			Build()
	}

	buf := newPendingBuffer(wave.Name(), wave.Path())
	if l.tracker != nil {
		l.tracker.Track(wave, buf)
	}

	l.mu.Lock()
	l.byPath[wave.Path()] = buf
	l.mu.Unlock()

	// The decode outlives the caller; a cancelled LoadAll must not leave a
	// failed buffer behind for other callers of the same path.
	decodeCtx := context.WithoutCancel(ctx)
	l.wg.Go(func() {
		defer f.Close()
		l.decode(decodeCtx, f, format, buf)
	})
	return buf, nil
}

func (l *Loader) decode(ctx context.Context, f *os.File, format Format, buf *Buffer) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		buf.complete(nil, err)
		return
	}

	pcm, err := Decode(f, format)
	if err != nil {
		var size int64
		if info, statErr := f.Stat(); statErr == nil {
			size = info.Size()
		}
		err = errors.New(err).
			Component(ComponentSoundBuffer).
			FileContext(buf.Path(), size).
			Context("operation", "decode_sound").
			Build()
		l.logger.Error("failed to decode sound",
			"path", buf.Path(),
			"format", format.String(),
			"error", err)
		buf.complete(nil, err)
		return
	}

	buf.complete(pcm, nil)
	l.logger.Debug("sound decoded",
		"path", buf.Path(),
		"format", format.String(),
		"sample_rate", pcm.SampleRate,
		"channels", pcm.Channels,
		"frames", pcm.Frames(),
		"duration_ms", time.Since(start).Milliseconds())
}

// LoadAll loads and fully decodes every wave, at most limit at a time.
// Buffers are returned in input order. The first error cancels the rest.
func (l *Loader) LoadAll(ctx context.Context, waves []*Wave, limit int) ([]*Buffer, error) {
	buffers := make([]*Buffer, len(waves))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, wave := range waves {
		g.Go(func() error {
			buf, err := l.Load(ctx, wave)
			if err != nil {
				return err
			}
			buf.WaitForDecode()
			if err := buf.Err(); err != nil {
				return fmt.Errorf("%s: %w", wave.Path(), err)
			}
			buffers[i] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return buffers, nil
}

// Wait blocks until every background decode has finished.
func (l *Loader) Wait() {
	l.wg.Wait()
}
