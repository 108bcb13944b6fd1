package software

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tphakala/audiopool/internal/conf"
	"github.com/tphakala/audiopool/internal/devicepool"
	"github.com/tphakala/audiopool/internal/errors"
	"github.com/tphakala/audiopool/internal/logging"
	"github.com/tphakala/audiopool/internal/observability/metrics"
)

// Factory builds software devices for the device pool.
type Factory struct {
	settings conf.RenderSettings
	buffers  BufferLookup
	opener   SinkOpener
	logger   *slog.Logger
	metrics  *metrics.DevicePoolMetrics

	mu      sync.Mutex
	devices []*Device
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithSinkOpener sets how each device opens its output. Without one,
// rendered audio stays in the device ring until read through Output.
func WithSinkOpener(opener SinkOpener) FactoryOption {
	return func(f *Factory) {
		f.opener = opener
	}
}

// WithMetrics records output overruns.
func WithMetrics(m *metrics.DevicePoolMetrics) FactoryOption {
	return func(f *Factory) {
		f.metrics = m
	}
}

// WithLogger sets the logger handed to every device.
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFactory returns a Factory rendering with settings. buffers decides
// which buffers devices accept for playback.
func NewFactory(settings conf.RenderSettings, buffers BufferLookup, opts ...FactoryOption) (*Factory, error) {
	if settings.SampleRate <= 0 || settings.Channels <= 0 || settings.FramesPerBuffer <= 0 {
		return nil, errors.New(fmt.Errorf("%w: sample rate %d, channels %d, frames per buffer %d",
			ErrInvalidRenderSettings, settings.SampleRate, settings.Channels, settings.FramesPerBuffer)).
			Build()
	}
	if buffers == nil {
		return nil, errors.New(fmt.Errorf("%w: no buffer lookup", ErrInvalidRenderSettings)).Build()
	}

	logger := logging.ForService("software")
	if logger == nil {
		logger = slog.Default()
	}

	f := &Factory{
		settings: settings,
		buffers:  buffers,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// CreateDevice implements devicepool.Factory.
func (f *Factory) CreateDevice() (devicepool.Device, error) {
	dev := newDevice(f.settings, f.buffers, f.opener, f.logger.With("component", "device"), f.metrics)

	f.mu.Lock()
	f.devices = append(f.devices, dev)
	f.mu.Unlock()
	return dev, nil
}

// Created returns every device built so far, including torn down ones.
func (f *Factory) Created() []*Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Device(nil), f.devices...)
}
