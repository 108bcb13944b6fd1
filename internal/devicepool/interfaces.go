package devicepool

// Factory creates device instances for the pool.
type Factory interface {
	CreateDevice() (Device, error)
}

// PlaybackID identifies one playing sound on a device.
type PlaybackID uint64

// Device is one audio rendering backend. The pool calls mix state methods
// (sound classes, submixes, effects, mixes, debug state, stop requests) on
// the audio thread; lifecycle methods run on the control thread.
type Device interface {
	// Handle returns the handle stamped by the pool.
	Handle() Handle
	SetHandle(h Handle)

	// Init opens the device with the platform channel budget.
	Init(maxChannels int) error
	SetMaxChannels(n int)
	MaxChannels() int

	// Update renders one pass.
	Update(gameTicking bool)
	// FadeIn ramps output from silence.
	FadeIn()
	SetMuted(muted bool)
	IsMuted() bool
	// Teardown releases everything the device holds. The device is not reused.
	Teardown()

	// StopSoundsUsingResource stops every sound playing asset and returns their ids.
	StopSoundsUsingResource(asset Asset) []PlaybackID
	// StopSourcesUsingBuffer stops every source reading buf. After it returns
	// the device holds no reference to buf.
	StopSourcesUsingBuffer(buf BufferResource)

	RegisterSoundClass(class *SoundClass)
	UnregisterSoundClass(class *SoundClass)
	InitSoundClasses()

	RegisterSubmix(submix *Submix)
	UnregisterSubmix(submix *Submix)
	InitSoundSubmixes()

	InitEffectPresets()
	UpdateSourceEffectChain(id uint32, chain []EffectChainEntry, playEffectTails bool)

	RemoveSoundMix(mix *SoundMix)

	SetDebugState(state DebugState)

	// AddReferencedObjects reports objects the device keeps alive.
	AddReferencedObjects(collector ReferenceCollector)
}

// BufferResource is a decoded sound buffer shared across devices.
type BufferResource interface {
	ResourceID() int
	SetResourceID(id int)
	ResourceName() string
	// Size returns the resident size in bytes.
	Size() int
	// WaitForDecode blocks until any asynchronous decode has finished.
	WaitForDecode()
	// Release frees the sample memory. Called once, after every device stopped using it.
	Release()
}

// Asset is the source asset of a buffer.
type Asset interface {
	ResourceID() int
	SetResourceID(id int)
	Name() string
}

// Describer is implemented by buffers that render their own listing line.
type Describer interface {
	Describe(longNames bool) string
}

// ReferenceCollector receives objects reported by AddReferencedObjects.
type ReferenceCollector interface {
	AddReferencedObject(owner string, object any)
}

// SoundClass groups sounds for volume and pitch control.
type SoundClass struct {
	Name   string
	Parent *SoundClass
	Volume float64
	Pitch  float64
}

// Submix is a mixing stage sounds can be routed through.
type Submix struct {
	Name         string
	Parent       *Submix
	OutputVolume float64
}

// SoundClassAdjustment scales a sound class while a mix is active.
type SoundClassAdjustment struct {
	Class  *SoundClass
	Volume float64
	Pitch  float64
}

// SoundMix is a set of sound class adjustments.
type SoundMix struct {
	Name        string
	Adjustments []SoundClassAdjustment
}

// EffectChainEntry is one preset in a source effect chain.
type EffectChainEntry struct {
	Preset string
	Bypass bool
}

// DebugState is the debug configuration pushed to every device.
type DebugState struct {
	PlayAllDeviceAudio bool     `json:"play_all_device_audio"`
	Visualize3d        bool     `json:"visualize_3d"`
	SoloSoundClass     string   `json:"solo_sound_class,omitempty"`
	SoloSoundWave      string   `json:"solo_sound_wave,omitempty"`
	SoloSoundCue       string   `json:"solo_sound_cue,omitempty"`
	MixerDebugSound    string   `json:"mixer_debug_sound,omitempty"`
	EnabledStats       []string `json:"enabled_stats,omitempty"`
}

// clone returns a copy that shares no slices with s.
func (s DebugState) clone() DebugState {
	if s.EnabledStats != nil {
		s.EnabledStats = append([]string(nil), s.EnabledStats...)
	}
	return s
}

// DeviceInfo is a snapshot of one live device.
type DeviceInfo struct {
	Handle      Handle `json:"handle"`
	Index       uint32 `json:"index"`
	Generation  uint8  `json:"generation"`
	Main        bool   `json:"main"`
	Active      bool   `json:"active"`
	Solo        bool   `json:"solo"`
	Muted       bool   `json:"muted"`
	MaxChannels int    `json:"max_channels"`
}

// CreateResult is the outcome of CreateDevice.
type CreateResult struct {
	Handle      Handle
	IsNewDevice bool
	Device      Device
}
