package devicepool

import (
	"context"
	"slices"
)

// runOnAudioThread executes fn on the audio thread with every live device,
// returning immediately when the caller is not already on that thread.
func (m *Manager) runOnAudioThread(fn func(dev Device)) {
	m.thread.Run(func() {
		m.forEachDevice(fn)
	})
}

// forEachDevice calls fn for every live device under the read lock.
func (m *Manager) forEachDevice(fn func(dev Device)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.slots.live(func(_ uint32, dev Device) {
		fn(dev)
	})
}

// RegisterSoundClass registers class with every device.
func (m *Manager) RegisterSoundClass(class *SoundClass) {
	m.runOnAudioThread(func(dev Device) { dev.RegisterSoundClass(class) })
}

// UnregisterSoundClass removes class from every device.
func (m *Manager) UnregisterSoundClass(class *SoundClass) {
	m.runOnAudioThread(func(dev Device) { dev.UnregisterSoundClass(class) })
}

// InitSoundClasses rebuilds the sound class graph on every device.
func (m *Manager) InitSoundClasses() {
	m.runOnAudioThread(func(dev Device) { dev.InitSoundClasses() })
}

// RegisterSubmix registers submix with every device.
func (m *Manager) RegisterSubmix(submix *Submix) {
	m.runOnAudioThread(func(dev Device) { dev.RegisterSubmix(submix) })
}

// UnregisterSubmix removes submix from every device.
func (m *Manager) UnregisterSubmix(submix *Submix) {
	m.runOnAudioThread(func(dev Device) { dev.UnregisterSubmix(submix) })
}

// InitSoundSubmixes rebuilds the submix graph on every device.
func (m *Manager) InitSoundSubmixes() {
	m.runOnAudioThread(func(dev Device) { dev.InitSoundSubmixes() })
}

// InitEffectPresets initializes effect presets on every device.
func (m *Manager) InitEffectPresets() {
	m.runOnAudioThread(func(dev Device) { dev.InitEffectPresets() })
}

// UpdateSourceEffectChain replaces effect chain id on every device. The
// chain is copied, so the caller may reuse its slice.
func (m *Manager) UpdateSourceEffectChain(id uint32, chain []EffectChainEntry, playEffectTails bool) {
	chain = slices.Clone(chain)
	m.runOnAudioThread(func(dev Device) { dev.UpdateSourceEffectChain(id, chain, playEffectTails) })
}

// RemoveMix removes mix from every device.
func (m *Manager) RemoveMix(mix *SoundMix) {
	m.runOnAudioThread(func(dev Device) { dev.RemoveSoundMix(mix) })
}

// StopSourcesUsingBuffer stops every source reading buf on every device,
// without waiting.
func (m *Manager) StopSourcesUsingBuffer(buf BufferResource) {
	if buf == nil {
		return
	}
	m.runOnAudioThread(func(dev Device) { dev.StopSourcesUsingBuffer(buf) })
}

// stopSourcesUsingBufferSync is StopSourcesUsingBuffer that returns only
// after every device has dropped buf.
func (m *Manager) stopSourcesUsingBufferSync(ctx context.Context, buf BufferResource) error {
	return m.thread.RunSync(ctx, func() {
		m.forEachDevice(func(dev Device) { dev.StopSourcesUsingBuffer(buf) })
	})
}

// StopSoundsUsingResource stops every sound playing asset on every device.
// Without collectStopped the request is queued and nil is returned; with it
// the call waits for the audio thread and returns every stopped id.
func (m *Manager) StopSoundsUsingResource(asset Asset, collectStopped bool) []PlaybackID {
	if asset == nil {
		return nil
	}
	if !collectStopped {
		m.runOnAudioThread(func(dev Device) { dev.StopSoundsUsingResource(asset) })
		return nil
	}

	var stopped []PlaybackID
	err := m.thread.RunSync(context.Background(), func() {
		m.forEachDevice(func(dev Device) {
			stopped = append(stopped, dev.StopSoundsUsingResource(asset)...)
		})
	})
	if err != nil {
		m.logger.Error("failed to stop sounds using resource",
			"asset", asset.Name(),
			"error", err)
	}
	return stopped
}

// AddReferencedObjects forwards collector to every device on the caller's thread.
func (m *Manager) AddReferencedObjects(collector ReferenceCollector) {
	if collector == nil {
		return
	}
	m.forEachDevice(func(dev Device) { dev.AddReferencedObjects(collector) })
}
