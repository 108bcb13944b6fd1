package devicepool

import (
	"cmp"
	"fmt"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// updateDebug applies fn to the debug state and pushes the result to every
// device on the audio thread.
func (m *Manager) updateDebug(fn func(s *DebugState)) DebugState {
	m.mu.Lock()
	playAllBefore := m.debug.PlayAllDeviceAudio
	fn(&m.debug)
	if m.debug.PlayAllDeviceAudio != playAllBefore {
		m.applyMutingLocked()
	}
	state := m.debug.clone()
	m.mu.Unlock()

	m.runOnAudioThread(func(dev Device) { dev.SetDebugState(state.clone()) })
	return state
}

// DebugState returns a copy of the current debug state.
func (m *Manager) DebugState() DebugState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.debug.clone()
}

// TogglePlayAllDeviceAudio makes every device audible regardless of the
// active and solo devices, or restores normal muting.
func (m *Manager) TogglePlayAllDeviceAudio() bool {
	state := m.updateDebug(func(s *DebugState) {
		s.PlayAllDeviceAudio = !s.PlayAllDeviceAudio
	})
	m.logger.Info("play all device audio toggled", "enabled", state.PlayAllDeviceAudio)
	return state.PlayAllDeviceAudio
}

// IsPlayAllDeviceAudio reports whether play-all debug mode is on.
func (m *Manager) IsPlayAllDeviceAudio() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.debug.PlayAllDeviceAudio
}

// ToggleVisualize3dDebug toggles 3d sound visualization on every device.
func (m *Manager) ToggleVisualize3dDebug() bool {
	state := m.updateDebug(func(s *DebugState) {
		s.Visualize3d = !s.Visualize3d
	})
	return state.Visualize3d
}

// IsVisualizeDebug3dEnabled reports whether 3d visualization is on.
func (m *Manager) IsVisualizeDebug3dEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.debug.Visualize3d
}

// ToggleDebugStat flips the named debug stat and reports whether it is now enabled.
func (m *Manager) ToggleDebugStat(name string) bool {
	enabled := false
	m.updateDebug(func(s *DebugState) {
		if i := slices.Index(s.EnabledStats, name); i >= 0 {
			s.EnabledStats = slices.Delete(s.EnabledStats, i, i+1)
			return
		}
		s.EnabledStats = append(s.EnabledStats, name)
		slices.Sort(s.EnabledStats)
		enabled = true
	})
	return enabled
}

// SetDebugSoloSoundClass limits audible output to one sound class; empty clears it.
func (m *Manager) SetDebugSoloSoundClass(name string) {
	m.updateDebug(func(s *DebugState) { s.SoloSoundClass = name })
}

// SetDebugSoloSoundWave limits audible output to one sound wave; empty clears it.
func (m *Manager) SetDebugSoloSoundWave(name string) {
	m.updateDebug(func(s *DebugState) { s.SoloSoundWave = name })
}

// SetDebugSoloSoundCue limits audible output to one sound cue; empty clears it.
func (m *Manager) SetDebugSoloSoundCue(name string) {
	m.updateDebug(func(s *DebugState) { s.SoloSoundCue = name })
}

// SetAudioMixerDebugSound selects the sound the mixer reports debug data for.
func (m *Manager) SetAudioMixerDebugSound(name string) {
	m.updateDebug(func(s *DebugState) { s.MixerDebugSound = name })
}

// SortBy orders a buffer listing.
type SortBy int

const (
	// SortBySize lists the largest buffers first.
	SortBySize SortBy = iota
	// SortByName lists buffers alphabetically, case-insensitive.
	SortByName
)

// ParseSortBy parses "size" or "name".
func ParseSortBy(s string) (SortBy, error) {
	switch s {
	case "", "size":
		return SortBySize, nil
	case "name":
		return SortByName, nil
	default:
		return SortBySize, fmt.Errorf("unknown sort order %q", s)
	}
}

// BufferInfo is one line of a buffer listing.
type BufferInfo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Size        int    `json:"size"`
	Description string `json:"description"`
}

// BufferListing is the result of ListSoundBuffers.
type BufferListing struct {
	Buffers    []BufferInfo `json:"buffers"`
	TotalBytes int64        `json:"total_bytes"`
}

// ListSoundBuffers describes every live buffer, sorted, with the resident total.
func (rt *ResourceTracker) ListSoundBuffers(sortBy SortBy, longNames bool) BufferListing {
	buffers := rt.Buffers()

	listing := BufferListing{Buffers: make([]BufferInfo, 0, len(buffers))}
	for _, buf := range buffers {
		info := BufferInfo{
			ID:   buf.ResourceID(),
			Name: buf.ResourceName(),
			Size: buf.Size(),
		}
		if d, ok := buf.(Describer); ok {
			info.Description = d.Describe(longNames)
		} else {
			info.Description = fmt.Sprintf("%8.2fkb %s", float64(info.Size)/1024, info.Name)
		}
		listing.TotalBytes += int64(info.Size)
		listing.Buffers = append(listing.Buffers, info)
	}

	switch sortBy {
	case SortByName:
		// Collators are not safe for concurrent use.
		col := collate.New(language.English, collate.IgnoreCase)
		slices.SortStableFunc(listing.Buffers, func(a, b BufferInfo) int {
			if c := col.CompareString(a.Name, b.Name); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
	default:
		slices.SortStableFunc(listing.Buffers, func(a, b BufferInfo) int {
			if c := cmp.Compare(b.Size, a.Size); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
	}

	return listing
}
