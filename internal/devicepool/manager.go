package devicepool

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tphakala/audiopool/internal/audiothread"
	"github.com/tphakala/audiopool/internal/conf"
	"github.com/tphakala/audiopool/internal/errors"
	"github.com/tphakala/audiopool/internal/logging"
	"github.com/tphakala/audiopool/internal/observability/metrics"
)

// Manager owns every audio device instance and the buffers they share.
// All exported methods are safe for concurrent use. Slot mutation and
// update passes are serialized by mu: UpdateAll holds the read lock for the
// whole pass, so a device is never torn down while it is being updated.
type Manager struct {
	id      string
	pool    conf.PoolSettings
	quality conf.QualitySettings
	logger  *slog.Logger
	metrics *metrics.DevicePoolMetrics

	thread *audiothread.Thread
	fence  *audiothread.Fence

	// invalidHandleLog bounds debug logging of stale handles
	invalidHandleLog *rate.Limiter

	resources *ResourceTracker

	mu               sync.RWMutex
	factory          Factory
	slots            *slotTable
	activeDevices    int
	mainDeviceWorlds int // worlds sharing the main device besides its creator
	mainHandle       Handle
	activeHandle     Handle
	soloHandle       Handle
	debug            DebugState
}

// Option configures a Manager.
type Option func(*Manager)

// WithAudioThread routes broadcasts and update fences through thread.
// Without it the Manager uses a stopped thread and every command runs inline.
func WithAudioThread(thread *audiothread.Thread) Option {
	return func(m *Manager) {
		if thread != nil {
			m.thread = thread
		}
	}
}

// WithMetrics attaches pool metrics.
func WithMetrics(pm *metrics.DevicePoolMetrics) Option {
	return func(m *Manager) {
		m.metrics = pm
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Manager with no devices and no factory.
func New(settings *conf.Settings, opts ...Option) *Manager {
	if settings == nil {
		settings = conf.Defaults()
	}

	logger := logging.ForService("devicepool")
	if logger == nil {
		// Fallback to default slog if logging not initialized
		logger = slog.Default()
	}

	m := &Manager{
		id:               uuid.NewString(),
		pool:             settings.Pool,
		quality:          settings.Quality,
		logger:           logger,
		invalidHandleLog: rate.NewLimiter(rate.Every(time.Second), 5),
		slots:            newSlotTable(settings.Pool.MinFreeIndices),
		mainHandle:       NoHandle,
		activeHandle:     NoHandle,
		soloHandle:       NoHandle,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.logger = m.logger.With("component", "manager", "manager_id", m.id)
	if m.thread == nil {
		m.thread = audiothread.New(settings.AudioThread, audiothread.WithMetrics(m.metrics))
	}
	m.fence = audiothread.NewFence(m.thread)
	m.resources = newResourceTracker(m, settings.Resources)

	return m
}

// ID returns the unique id of this Manager instance.
func (m *Manager) ID() string {
	return m.id
}

// AudioThread returns the thread the Manager dispatches commands to.
func (m *Manager) AudioThread() *audiothread.Thread {
	return m.thread
}

// Resources returns the buffer resource tracker.
func (m *Manager) Resources() *ResourceTracker {
	return m.resources
}

// RegisterFactory binds the factory used to create devices. It can be called once.
func (m *Manager) RegisterFactory(f Factory) error {
	if f == nil {
		return ErrNilFactory
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.factory != nil {
		m.logger.Error("device factory already registered",
			"factory", fmt.Sprintf("%T", f))
		return ErrFactoryAlreadyRegistered
	}
	m.factory = f
	m.logger.Debug("device factory registered",
		"factory", fmt.Sprintf("%T", f))
	return nil
}

// CreateDevice returns a device for a new world. It creates a new device
// while the pool is below its default size, or below its ceiling when
// forceNew is set; otherwise the main device is shared. Reaching the ceiling
// is not an error.
func (m *Manager) CreateDevice(forceNew bool) (CreateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.factory == nil {
		m.logger.Error("cannot create audio device without a factory")
		m.metrics.RecordDeviceCreation(metrics.CreateResultFailed)
		return CreateResult{}, ErrNoFactory
	}

	if !m.pool.AllowMultipleDevices && m.activeDevices == 1 {
		return m.shareMainLocked("single_instance")
	}

	canCreate := m.activeDevices < m.pool.DefaultDevices ||
		(forceNew && m.activeDevices < m.pool.MaxDevices)
	if !canCreate {
		return m.shareMainLocked("pool_limit")
	}

	result, err := m.createLocked()
	if err != nil {
		m.metrics.RecordDeviceCreation(metrics.CreateResultFailed)
		return CreateResult{}, err
	}

	result.Device.FadeIn()
	m.metrics.RecordDeviceCreation(metrics.CreateResultNew)
	m.recordPoolStateLocked()
	return result, nil
}

// shareMainLocked hands out the main device to one more world.
// It fails when there is no main device, e.g. a pool sized to zero devices.
func (m *Manager) shareMainLocked(reason string) (CreateResult, error) {
	dev := m.slots.get(m.mainHandle)
	if dev == nil {
		m.logger.Error("no main audio device to share",
			"reason", reason,
			"active_devices", m.activeDevices,
			"default_devices", m.pool.DefaultDevices)
		m.metrics.RecordDeviceCreation(metrics.CreateResultFailed)
		return CreateResult{Handle: NoHandle}, errors.New(ErrNoMainDevice).
			Context("reason", reason).
			Context("active_devices", m.activeDevices).
			Build()
	}

	m.mainDeviceWorlds++
	dev.FadeIn()

	m.logger.Debug("sharing main audio device",
		"reason", reason,
		"handle", m.mainHandle,
		"main_device_worlds", m.mainDeviceWorlds)
	m.metrics.RecordDeviceCreation(metrics.CreateResultShared)
	m.recordPoolStateLocked()

	return CreateResult{Handle: m.mainHandle, IsNewDevice: false, Device: dev}, nil
}

// createLocked builds, stamps and initializes one new device.
func (m *Manager) createLocked() (CreateResult, error) {
	start := time.Now()

	index, generation, ok := m.slots.allocate()
	if !ok {
		return CreateResult{}, ErrSlotTableFull
	}
	handle := MakeHandle(index, generation)

	dev, err := m.factory.CreateDevice()
	if err != nil || dev == nil {
		m.slots.release(index)
		if err == nil {
			err = errors.NewStd("factory returned no device")
		}
		m.logger.Error("device factory failed",
			"handle", handle,
			"error", err)
		return CreateResult{}, errors.New(fmt.Errorf("%w: %w", ErrDeviceCreateFailed, err)).
			Context("handle", handle.String()).
			Build()
	}

	dev.SetHandle(handle)
	m.slots.set(index, dev)
	m.activeDevices++
	if m.mainHandle == NoHandle {
		m.mainHandle = handle
	}
	if m.activeHandle == NoHandle {
		m.activeHandle = handle
	}

	highest := m.quality.HighestMaxChannels()
	if err := dev.Init(highest); err != nil {
		m.logger.Error("audio device failed to initialize",
			"handle", handle,
			"max_channels", highest,
			"error", err)
		m.teardownLocked(handle, dev)
		return CreateResult{}, errors.New(fmt.Errorf("%w: %w", ErrDeviceInitFailed, err)).
			Context("handle", handle.String()).
			Context("max_channels", highest).
			Timing("init_device", time.Since(start)).
			Build()
	}
	dev.SetMaxChannels(min(m.quality.CurrentMaxChannels(), highest))

	// A new device joins muted when another device holds solo or active focus.
	if target := m.focusLocked(); target != NoHandle && target != handle && !m.debug.PlayAllDeviceAudio {
		dev.SetMuted(true)
	}

	m.logger.Info("audio device created",
		"handle", handle,
		"index", index,
		"generation", generation,
		"max_channels", dev.MaxChannels(),
		"active_devices", m.activeDevices,
		"duration_ms", time.Since(start).Milliseconds())

	return CreateResult{Handle: handle, IsNewDevice: true, Device: dev}, nil
}

// IsValidHandle reports whether h refers to a live device.
func (m *Manager) IsValidHandle(h Handle) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isValidLocked(h)
}

func (m *Manager) isValidLocked(h Handle) bool {
	if h == NoHandle || m.factory == nil {
		return false
	}
	return m.slots.get(h) != nil
}

// Device returns the live device for h.
func (m *Manager) Device(h Handle) (Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.isValidLocked(h) {
		m.invalidHandle("device", h)
		return nil, false
	}
	return m.slots.get(h), true
}

// ShutdownDevice releases one world's use of the device behind h. The main
// device stays alive while other worlds still share it. It returns false for
// an invalid handle.
func (m *Manager) ShutdownDevice(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdownLocked(h)
}

func (m *Manager) shutdownLocked(h Handle) bool {
	if !m.isValidLocked(h) {
		m.invalidHandle("shutdown_device", h)
		return false
	}

	if h == m.mainHandle && m.mainDeviceWorlds > 0 {
		m.mainDeviceWorlds--
		m.logger.Debug("released shared world of main device",
			"handle", h,
			"main_device_worlds", m.mainDeviceWorlds)
		m.metrics.RecordDeviceShutdown(metrics.ShutdownResultReleasedWorld)
		m.recordPoolStateLocked()
		return true
	}

	m.teardownLocked(h, m.slots.get(h))
	m.metrics.RecordDeviceShutdown(metrics.ShutdownResultTeardown)
	return true
}

// teardownLocked destroys the device in h's slot and repairs the focus state.
func (m *Manager) teardownLocked(h Handle, dev Device) {
	index := IndexOf(h)
	m.activeDevices--
	m.slots.release(index)
	dev.Teardown()

	if h == m.mainHandle {
		m.mainHandle = m.lowestLiveLocked()
		if m.mainHandle != NoHandle {
			m.logger.Info("main audio device reassigned",
				"old_handle", h,
				"new_handle", m.mainHandle)
		}
	}

	refocus := false
	if h == m.soloHandle {
		m.soloHandle = NoHandle
		refocus = true
	}
	if h == m.activeHandle {
		m.activeHandle = m.mainHandle
		refocus = true
	}

	// A lone survivor is always the active, audible device.
	if m.activeDevices == 1 {
		if survivor := m.lowestLiveLocked(); survivor != NoHandle {
			m.activeHandle = survivor
			if m.soloHandle != survivor {
				m.soloHandle = NoHandle
			}
			refocus = true
		}
	}
	if refocus {
		m.applyMutingLocked()
	}

	m.logger.Info("audio device shut down",
		"handle", h,
		"active_devices", m.activeDevices)
	m.recordPoolStateLocked()
}

func (m *Manager) lowestLiveLocked() Handle {
	found := NoHandle
	m.slots.live(func(index uint32, dev Device) {
		if found == NoHandle {
			found = dev.Handle()
		}
	})
	return found
}

// ShutdownAll releases every sharing world and destroys every device.
func (m *Manager) ShutdownAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := m.mainDeviceWorlds
	m.mainDeviceWorlds = 0

	var handles []Handle
	m.slots.live(func(_ uint32, dev Device) {
		handles = append(handles, dev.Handle())
	})
	for _, h := range handles {
		m.shutdownLocked(h)
	}

	if m.activeDevices != 0 || m.mainDeviceWorlds != 0 {
		m.logger.Error("device counters not zero after shutting down all devices",
			"active_devices", m.activeDevices,
			"main_device_worlds", m.mainDeviceWorlds)
	}

	m.logger.Info("all audio devices shut down",
		"devices", len(handles),
		"released_worlds", released)
	m.recordPoolStateLocked()
}

// SetActiveDevice makes h the audible device and mutes every other device.
// It has no effect while a solo device is set.
func (m *Manager) SetActiveDevice(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.soloHandle != NoHandle {
		return
	}
	if !m.isValidLocked(h) {
		m.invalidHandle("set_active_device", h)
		return
	}
	m.activeHandle = h
	m.applyMutingLocked()
}

// SetSoloDevice pins audio to h until called again with NoHandle. Clearing
// solo restores the active device muting.
func (m *Manager) SetSoloDevice(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h != NoHandle && !m.isValidLocked(h) {
		m.invalidHandle("set_solo_device", h)
		return
	}
	m.soloHandle = h
	m.applyMutingLocked()
}

// focusLocked returns the handle that should be audible, NoHandle for all.
func (m *Manager) focusLocked() Handle {
	if m.soloHandle != NoHandle {
		return m.soloHandle
	}
	return m.activeHandle
}

// applyMutingLocked mutes every device except the focus device. Play-all
// debug mode unmutes everything.
func (m *Manager) applyMutingLocked() {
	target := m.focusLocked()
	m.slots.live(func(_ uint32, dev Device) {
		muted := !m.debug.PlayAllDeviceAudio && target != NoHandle && dev.Handle() != target
		dev.SetMuted(muted)
	})
}

// ActiveDevice returns the handle of the active device.
func (m *Manager) ActiveDevice() Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeHandle
}

// SoloDevice returns the solo handle or NoHandle.
func (m *Manager) SoloDevice() Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.soloHandle
}

// MainDevice returns the handle of the main device or NoHandle.
func (m *Manager) MainDevice() Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mainHandle
}

// NumActiveDevices returns the number of live devices.
func (m *Manager) NumActiveDevices() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeDevices
}

// NumMainDeviceWorlds returns how many extra worlds share the main device.
func (m *Manager) NumMainDeviceWorlds() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mainDeviceWorlds
}

// Devices returns a snapshot of every live device in slot order.
func (m *Manager) Devices() []DeviceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]DeviceInfo, 0, m.activeDevices)
	m.slots.live(func(index uint32, dev Device) {
		h := dev.Handle()
		infos = append(infos, DeviceInfo{
			Handle:      h,
			Index:       index,
			Generation:  GenerationOf(h),
			Main:        h == m.mainHandle,
			Active:      h == m.activeHandle,
			Solo:        h == m.soloHandle,
			Muted:       dev.IsMuted(),
			MaxChannels: dev.MaxChannels(),
		})
	})
	return infos
}

func (m *Manager) invalidHandle(operation string, h Handle) {
	m.metrics.RecordInvalidHandle(operation)
	if m.invalidHandleLog.Allow() {
		m.logger.Debug("ignoring invalid audio device handle",
			"operation", operation,
			"handle", h)
	}
}

func (m *Manager) recordPoolStateLocked() {
	m.metrics.SetPoolState(m.activeDevices, m.mainDeviceWorlds)
}
