// Package malgo plays a software device's output on a hardware playback
// device through miniaudio.
package malgo

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	ma "github.com/gen2brain/malgo"

	"github.com/tphakala/audiopool/internal/backend/software"
	"github.com/tphakala/audiopool/internal/conf"
	"github.com/tphakala/audiopool/internal/errors"
	"github.com/tphakala/audiopool/internal/logging"
)

// Component identifier for malgo output errors
const ComponentMalgo = "malgo-output"

// Sink pulls int16 frames from a software device into a playback device.
type Sink struct {
	src    io.Reader
	logger *slog.Logger

	ctx    *ma.AllocatedContext
	device *ma.Device

	underruns atomic.Uint64
	closeOnce sync.Once
}

var _ software.Sink = (*Sink)(nil)

// Open is a software.SinkOpener for the default playback device.
func Open(src io.Reader, settings conf.RenderSettings) (software.Sink, error) {
	logger := logging.ForService("malgo")
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{src: src, logger: logger.With("component", "sink")}

	ctx, err := ma.InitContext(nil, ma.ContextConfig{}, func(message string) {
		s.logger.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentMalgo).
			Category(errors.CategoryOutput).
			Context("operation", "init_context").
			Build()
	}
	s.ctx = ctx

	cfg := ma.DefaultDeviceConfig(ma.Playback)
	cfg.Playback.Format = ma.FormatS16
	cfg.Playback.Channels = uint32(settings.Channels)
	cfg.SampleRate = uint32(settings.SampleRate)
	cfg.PeriodSizeInFrames = uint32(settings.FramesPerBuffer)
	cfg.PerformanceProfile = ma.LowLatency

	device, err := ma.InitDevice(ctx.Context, cfg, ma.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) {
			if fill(s.src, output) {
				s.underruns.Add(1)
			}
		},
	})
	if err != nil {
		s.freeContext()
		return nil, errors.New(err).
			Component(ComponentMalgo).
			Category(errors.CategoryOutput).
			Context("operation", "init_device").
			Context("sample_rate", settings.SampleRate).
			Context("channels", settings.Channels).
			Build()
	}
	s.device = device
	return s, nil
}

func (s *Sink) Start() error {
	if err := s.device.Start(); err != nil {
		return errors.New(err).
			Component(ComponentMalgo).
			Category(errors.CategoryOutput).
			Context("operation", "start_device").
			Build()
	}
	s.logger.Info("playback device started")
	return nil
}

func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		if s.device != nil {
			if err := s.device.Stop(); err != nil {
				s.logger.Warn("failed to stop playback device", "error", err)
			}
			s.device.Uninit()
		}
		s.freeContext()
		s.logger.Info("playback device closed", "underruns", s.underruns.Load())
	})
	return nil
}

// Underruns returns how many callbacks had to pad with silence.
func (s *Sink) Underruns() uint64 {
	return s.underruns.Load()
}

func (s *Sink) freeContext() {
	if s.ctx == nil {
		return
	}
	if err := s.ctx.Uninit(); err != nil {
		s.logger.Warn("failed to uninit audio context", "error", err)
	}
	s.ctx.Free()
	s.ctx = nil
}

// fill copies what src has into out and zeroes the rest. It reports
// whether out had to be padded.
func fill(src io.Reader, out []byte) bool {
	n := 0
	for n < len(out) {
		m, err := src.Read(out[n:])
		n += m
		if err != nil || m == 0 {
			break
		}
	}
	clear(out[n:])
	return n < len(out)
}
