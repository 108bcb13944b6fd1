// Package metrics provides Prometheus metrics for the audio device pool
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Device creation results
const (
	CreateResultNew    = "new"
	CreateResultShared = "shared"
	CreateResultFailed = "failed"
)

// Device shutdown results
const (
	ShutdownResultTeardown      = "teardown"
	ShutdownResultReleasedWorld = "released_world"
)

// DevicePoolMetrics contains Prometheus metrics for device pool operations.
// All recording methods are safe to call on a nil receiver.
type DevicePoolMetrics struct {
	registry *prometheus.Registry

	// Pool metrics
	activeDevices     prometheus.Gauge
	mainDeviceWorlds  prometheus.Gauge
	deviceCreations   *prometheus.CounterVec
	deviceShutdowns   *prometheus.CounterVec
	invalidHandles    *prometheus.CounterVec
	updatePassSeconds prometheus.Histogram

	// Resource tracker metrics
	trackedBuffers     prometheus.Gauge
	trackedBufferBytes prometheus.Gauge
	buffersFreed       prometheus.Counter

	// Audio thread metrics
	fenceWaitSeconds   prometheus.Histogram
	threadCommands     prometheus.Counter
	threadQueueDepth   prometheus.Gauge
	threadCommandPanic prometheus.Counter

	// Software device metrics
	outputOverruns prometheus.Counter

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewDevicePoolMetrics creates and registers new device pool metrics
func NewDevicePoolMetrics(registry *prometheus.Registry) (*DevicePoolMetrics, error) {
	m := &DevicePoolMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *DevicePoolMetrics) initMetrics() {
	m.activeDevices = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audiopool_active_devices",
		Help: "Number of live audio device instances",
	})

	m.mainDeviceWorlds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audiopool_main_device_worlds",
		Help: "Number of additional worlds sharing the main device",
	})

	m.deviceCreations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiopool_device_creations_total",
			Help: "Total number of device creation requests by result",
		},
		[]string{"result"},
	)

	m.deviceShutdowns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiopool_device_shutdowns_total",
			Help: "Total number of successful device shutdown requests by result",
		},
		[]string{"result"},
	)

	m.invalidHandles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiopool_invalid_handle_total",
			Help: "Total number of operations called with an invalid device handle",
		},
		[]string{"operation"},
	)

	m.updatePassSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "audiopool_update_pass_duration_seconds",
		Help:    "Time taken to update every live device once",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~200ms
	})

	m.trackedBuffers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audiopool_tracked_buffers",
		Help: "Number of live tracked sound buffers",
	})

	m.trackedBufferBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audiopool_tracked_buffer_bytes",
		Help: "Resident size of all tracked sound buffers",
	})

	m.buffersFreed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audiopool_buffers_freed_total",
		Help: "Total number of sound buffers freed",
	})

	m.fenceWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "audiopool_fence_wait_duration_seconds",
		Help:    "Time spent waiting for the previous update pass fence",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
	})

	m.threadCommands = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audiopool_audio_thread_commands_total",
		Help: "Total number of commands executed by the audio thread",
	})

	m.threadQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audiopool_audio_thread_queue_depth",
		Help: "Number of commands waiting for the audio thread",
	})

	m.threadCommandPanic = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audiopool_audio_thread_command_panics_total",
		Help: "Total number of audio thread commands that panicked",
	})

	m.outputOverruns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audiopool_output_overruns_total",
		Help: "Total number of rendered blocks dropped because the output buffer was full",
	})

	m.collectors = []prometheus.Collector{
		m.activeDevices,
		m.mainDeviceWorlds,
		m.deviceCreations,
		m.deviceShutdowns,
		m.invalidHandles,
		m.updatePassSeconds,
		m.trackedBuffers,
		m.trackedBufferBytes,
		m.buffersFreed,
		m.fenceWaitSeconds,
		m.threadCommands,
		m.threadQueueDepth,
		m.threadCommandPanic,
		m.outputOverruns,
	}
}

// Describe implements the Collector interface
func (m *DevicePoolMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *DevicePoolMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// Registry returns the registry the metrics were registered with
func (m *DevicePoolMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Pool metrics recording methods

// SetPoolState updates the device count gauges
func (m *DevicePoolMetrics) SetPoolState(activeDevices, mainDeviceWorlds int) {
	if m == nil {
		return
	}
	m.activeDevices.Set(float64(activeDevices))
	m.mainDeviceWorlds.Set(float64(mainDeviceWorlds))
}

// RecordDeviceCreation records one CreateDevice outcome
func (m *DevicePoolMetrics) RecordDeviceCreation(result string) {
	if m == nil {
		return
	}
	m.deviceCreations.WithLabelValues(result).Inc()
}

// RecordDeviceShutdown records one successful ShutdownDevice outcome
func (m *DevicePoolMetrics) RecordDeviceShutdown(result string) {
	if m == nil {
		return
	}
	m.deviceShutdowns.WithLabelValues(result).Inc()
}

// RecordInvalidHandle records an operation rejected because of a stale or unknown handle
func (m *DevicePoolMetrics) RecordInvalidHandle(operation string) {
	if m == nil {
		return
	}
	m.invalidHandles.WithLabelValues(operation).Inc()
}

// RecordUpdatePass records the duration of one UpdateAll pass
func (m *DevicePoolMetrics) RecordUpdatePass(duration time.Duration) {
	if m == nil {
		return
	}
	m.updatePassSeconds.Observe(duration.Seconds())
}

// Resource tracker recording methods

// SetTrackedBuffers updates the tracked buffer gauges
func (m *DevicePoolMetrics) SetTrackedBuffers(count int, bytes int64) {
	if m == nil {
		return
	}
	m.trackedBuffers.Set(float64(count))
	m.trackedBufferBytes.Set(float64(bytes))
}

// RecordBufferFreed records a sound buffer release
func (m *DevicePoolMetrics) RecordBufferFreed() {
	if m == nil {
		return
	}
	m.buffersFreed.Inc()
}

// Audio thread recording methods

// RecordFenceWait records how long a fence wait blocked
func (m *DevicePoolMetrics) RecordFenceWait(duration time.Duration) {
	if m == nil {
		return
	}
	m.fenceWaitSeconds.Observe(duration.Seconds())
}

// RecordAudioThreadCommands records executed audio thread commands
func (m *DevicePoolMetrics) RecordAudioThreadCommands(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.threadCommands.Add(float64(n))
}

// SetAudioThreadQueueDepth updates the pending command gauge
func (m *DevicePoolMetrics) SetAudioThreadQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.threadQueueDepth.Set(float64(depth))
}

// RecordAudioThreadPanic records a command that panicked on the audio thread
func (m *DevicePoolMetrics) RecordAudioThreadPanic() {
	if m == nil {
		return
	}
	m.threadCommandPanic.Inc()
}

// RecordOutputOverrun records a rendered block dropped by a full output buffer
func (m *DevicePoolMetrics) RecordOutputOverrun() {
	if m == nil {
		return
	}
	m.outputOverruns.Inc()
}

// PoolSnapshot is a point-in-time read of the pool gauges
type PoolSnapshot struct {
	ActiveDevices      float64 `json:"active_devices"`
	MainDeviceWorlds   float64 `json:"main_device_worlds"`
	TrackedBuffers     float64 `json:"tracked_buffers"`
	TrackedBufferBytes float64 `json:"tracked_buffer_bytes"`
	QueueDepth         float64 `json:"audio_thread_queue_depth"`
}

// Snapshot reads the current gauge values
func (m *DevicePoolMetrics) Snapshot() PoolSnapshot {
	if m == nil {
		return PoolSnapshot{}
	}
	return PoolSnapshot{
		ActiveDevices:      gaugeValue(m.activeDevices),
		MainDeviceWorlds:   gaugeValue(m.mainDeviceWorlds),
		TrackedBuffers:     gaugeValue(m.trackedBuffers),
		TrackedBufferBytes: gaugeValue(m.trackedBufferBytes),
		QueueDepth:         gaugeValue(m.threadQueueDepth),
	}
}

func gaugeValue(g prometheus.Gauge) float64 {
	metric := &dto.Metric{}
	if err := g.Write(metric); err != nil {
		return 0
	}
	if metric.Gauge != nil && metric.Gauge.Value != nil {
		return *metric.Gauge.Value
	}
	return 0
}
