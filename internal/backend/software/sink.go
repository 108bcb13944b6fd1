package software

import (
	"io"
	"sync"
	"time"

	"github.com/tphakala/audiopool/internal/conf"
)

// Sink consumes the interleaved int16 stream a device renders.
type Sink interface {
	Start() error
	Close() error
}

// SinkOpener opens a sink reading from src.
type SinkOpener func(src io.Reader, settings conf.RenderSettings) (Sink, error)

// DiscardSink drains the output at the render rate and throws it away.
// It stands in for hardware on the null output.
type DiscardSink struct {
	src      io.Reader
	interval time.Duration
	block    int

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// OpenDiscardSink is a SinkOpener for DiscardSink.
func OpenDiscardSink(src io.Reader, settings conf.RenderSettings) (Sink, error) {
	interval := time.Duration(settings.FramesPerBuffer) * time.Second / time.Duration(max(settings.SampleRate, 1))
	return &DiscardSink{
		src:      src,
		interval: max(interval, time.Millisecond),
		block:    settings.FramesPerBuffer * settings.Channels * bytesPerSample,
	}, nil
}

func (s *DiscardSink) Start() error {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.drain()
	return nil
}

func (s *DiscardSink) drain() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	scratch := make([]byte, s.block)
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			// Empty reads are expected while the device is idle.
			_, _ = s.src.Read(scratch)
		}
	}
}

func (s *DiscardSink) Close() error {
	s.once.Do(func() {
		if s.stop != nil {
			close(s.stop)
			<-s.done
		}
	})
	return nil
}
