// Package software implements an audio device that mixes sound buffers in
// software into an interleaved int16 ring buffer.
package software

import (
	"encoding/binary"
	"io"
	"log/slog"
	"maps"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/audiopool/internal/conf"
	"github.com/tphakala/audiopool/internal/devicepool"
	"github.com/tphakala/audiopool/internal/errors"
	"github.com/tphakala/audiopool/internal/observability/metrics"
	"github.com/tphakala/audiopool/internal/soundbuffer"
)

const bytesPerSample = 2

// BufferLookup resolves resource ids to tracked buffers.
type BufferLookup interface {
	Lookup(id int) (devicepool.BufferResource, bool)
}

type voice struct {
	id    devicepool.PlaybackID
	buf   *soundbuffer.Buffer
	pcm   soundbuffer.PCM
	class *devicepool.SoundClass
	pos   float64
	step  float64
}

// Device is a software mixing device. Play may be called from any
// goroutine; the pool drives everything else.
type Device struct {
	devicepool.HandleStamp

	settings conf.RenderSettings
	buffers  BufferLookup
	opener   SinkOpener
	logger   *slog.Logger
	metrics  *metrics.DevicePoolMetrics

	overruns atomic.Uint64
	rendered atomic.Uint64 // frames

	mu           sync.Mutex
	initialized  bool
	maxChannels  int
	muted        bool
	fadeFrames   int
	fadePos      int
	voices       []*voice
	nextPlayback devicepool.PlaybackID
	classes      map[string]*devicepool.SoundClass
	submixes     map[string]*devicepool.Submix
	mixes        []*devicepool.SoundMix
	effectChains map[uint32][]devicepool.EffectChainEntry
	presetsReady bool
	debug        devicepool.DebugState

	ring *ringbuffer.RingBuffer
	sink Sink
	mix  []float32
	out  []byte
}

func newDevice(settings conf.RenderSettings, buffers BufferLookup, opener SinkOpener, logger *slog.Logger, m *metrics.DevicePoolMetrics) *Device {
	return &Device{
		settings:     settings,
		buffers:      buffers,
		opener:       opener,
		logger:       logger,
		metrics:      m,
		classes:      make(map[string]*devicepool.SoundClass),
		submixes:     make(map[string]*devicepool.Submix),
		effectChains: make(map[uint32][]devicepool.EffectChainEntry),
	}
}

// Init allocates the output ring and opens the sink.
func (d *Device) Init(maxChannels int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	frameBytes := d.settings.Channels * bytesPerSample
	d.ring = ringbuffer.New(max(d.settings.RingFrames, d.settings.FramesPerBuffer) * frameBytes)
	d.mix = make([]float32, d.settings.FramesPerBuffer*d.settings.Channels)
	d.out = make([]byte, len(d.mix)*bytesPerSample)
	d.maxChannels = maxChannels

	if d.opener != nil {
		sink, err := d.opener(d.ring, d.settings)
		if err != nil {
			return errors.New(err).
				Component(ComponentSoftware).
				Category(errors.CategoryOutput).
				Context("operation", "open_sink").
				Build()
		}
		if err := sink.Start(); err != nil {
			_ = sink.Close()
			return errors.New(err).
				Component(ComponentSoftware).
				Category(errors.CategoryOutput).
				Context("operation", "start_sink").
				Build()
		}
		d.sink = sink
	}

	d.initialized = true
	d.logger.Debug("software device initialized",
		"handle", d.Handle(),
		"max_channels", maxChannels,
		"sample_rate", d.settings.SampleRate,
		"channels", d.settings.Channels)
	return nil
}

func (d *Device) SetMaxChannels(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maxChannels = n
}

func (d *Device) MaxChannels() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxChannels
}

// FadeIn restarts the output ramp from silence.
func (d *Device) FadeIn() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fadeFrames = int(d.settings.FadeIn * time.Duration(d.settings.SampleRate) / time.Second)
	d.fadePos = 0
}

func (d *Device) SetMuted(muted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.muted = muted
}

func (d *Device) IsMuted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.muted
}

// Teardown stops every voice and closes the sink.
func (d *Device) Teardown() {
	d.mu.Lock()
	sink := d.sink
	d.sink = nil
	d.voices = nil
	d.initialized = false
	d.mu.Unlock()

	if sink != nil {
		if err := sink.Close(); err != nil {
			d.logger.Warn("failed to close audio sink",
				"handle", d.Handle(),
				"error", err)
		}
	}
}

// Play starts buf on a free voice. class may be nil.
func (d *Device) Play(buf *soundbuffer.Buffer, class *devicepool.SoundClass) (devicepool.PlaybackID, error) {
	if buf == nil || buf.Released() {
		return 0, ErrBufferReleased
	}
	if tracked, ok := d.buffers.Lookup(buf.ResourceID()); !ok || tracked != devicepool.BufferResource(buf) {
		return 0, errors.New(ErrBufferNotTracked).
			Context("resource_id", buf.ResourceID()).
			Build()
	}

	buf.WaitForDecode()
	if err := buf.Err(); err != nil {
		return 0, err
	}
	pcm := buf.PCM()

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return 0, ErrNotInitialized
	}
	// Released while waiting for the decode.
	if buf.Released() {
		return 0, ErrBufferReleased
	}
	// A free removes the id before it stops sources under d.mu, so a buffer
	// still tracked here cannot miss that stop.
	if tracked, ok := d.buffers.Lookup(buf.ResourceID()); !ok || tracked != devicepool.BufferResource(buf) {
		return 0, errors.New(ErrBufferNotTracked).
			Context("resource_id", buf.ResourceID()).
			Build()
	}
	if len(d.voices) >= d.maxChannels {
		return 0, errors.New(ErrVoiceLimit).
			Context("max_channels", d.maxChannels).
			Build()
	}

	d.nextPlayback++
	d.voices = append(d.voices, &voice{
		id:    d.nextPlayback,
		buf:   buf,
		pcm:   pcm,
		class: class,
		step:  float64(pcm.SampleRate) / float64(d.settings.SampleRate),
	})
	return d.nextPlayback, nil
}

// Update mixes one block into the output ring.
func (d *Device) Update(bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return
	}

	clear(d.mix)
	channels := d.settings.Channels
	frames := d.settings.FramesPerBuffer

	d.voices = slices.DeleteFunc(d.voices, func(v *voice) bool {
		return !d.mixVoiceLocked(v, frames, channels)
	})

	for f := range frames {
		gain := float32(1)
		if d.muted {
			gain = 0
		} else if d.fadePos < d.fadeFrames {
			gain = float32(d.fadePos) / float32(d.fadeFrames)
		}
		if d.fadePos < d.fadeFrames {
			d.fadePos++
		}
		for c := range channels {
			s := d.mix[f*channels+c] * gain
			s = max(-1, min(1, s))
			binary.LittleEndian.PutUint16(d.out[(f*channels+c)*bytesPerSample:], uint16(int16(s*math.MaxInt16)))
		}
	}

	n, err := d.ring.Write(d.out)
	if err != nil || n < len(d.out) {
		d.overruns.Add(1)
		d.metrics.RecordOutputOverrun()
	}
	d.rendered.Add(uint64(frames))
}

// mixVoiceLocked adds up to frames of v into d.mix and reports whether v
// has samples left.
func (d *Device) mixVoiceLocked(v *voice, frames, channels int) bool {
	srcChannels := v.pcm.Channels
	srcFrames := v.pcm.Frames()
	if srcChannels == 0 || srcFrames == 0 {
		return false
	}

	gain, pitch := d.classGainLocked(v.class)
	if !d.audibleLocked(v) {
		gain = 0
	}
	step := v.step * pitch

	for f := range frames {
		idx := int(v.pos)
		if idx >= srcFrames {
			return false
		}
		for c := range channels {
			src := min(c, srcChannels-1)
			d.mix[f*channels+c] += v.pcm.Samples[idx*srcChannels+src] * gain
		}
		v.pos += step
	}
	return int(v.pos) < srcFrames
}

// classGainLocked walks the class hierarchy and the active mixes.
func (d *Device) classGainLocked(class *devicepool.SoundClass) (gain float32, pitch float64) {
	gain, pitch = 1, 1
	for c := class; c != nil; c = c.Parent {
		gain *= float32(c.Volume)
		if c.Pitch > 0 {
			pitch *= c.Pitch
		}
		for _, mix := range d.mixes {
			for _, adj := range mix.Adjustments {
				if adj.Class != c {
					continue
				}
				gain *= float32(adj.Volume)
				if adj.Pitch > 0 {
					pitch *= adj.Pitch
				}
			}
		}
	}
	return gain, pitch
}

// audibleLocked applies the debug solo filters.
func (d *Device) audibleLocked(v *voice) bool {
	if s := d.debug.SoloSoundClass; s != "" && (v.class == nil || v.class.Name != s) {
		return false
	}
	if s := d.debug.SoloSoundWave; s != "" && v.buf.ResourceName() != s {
		return false
	}
	return true
}

func (d *Device) StopSoundsUsingResource(asset devicepool.Asset) []devicepool.PlaybackID {
	d.mu.Lock()
	defer d.mu.Unlock()

	var stopped []devicepool.PlaybackID
	d.voices = slices.DeleteFunc(d.voices, func(v *voice) bool {
		if v.buf.ResourceID() != asset.ResourceID() {
			return false
		}
		stopped = append(stopped, v.id)
		return true
	})
	return stopped
}

func (d *Device) StopSourcesUsingBuffer(buf devicepool.BufferResource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.voices = slices.DeleteFunc(d.voices, func(v *voice) bool {
		return devicepool.BufferResource(v.buf) == buf
	})
}

func (d *Device) RegisterSoundClass(class *devicepool.SoundClass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.classes[class.Name] = class
}

func (d *Device) UnregisterSoundClass(class *devicepool.SoundClass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.classes[class.Name] == class {
		delete(d.classes, class.Name)
	}
}

// InitSoundClasses drops classes whose parent is no longer registered.
func (d *Device) InitSoundClasses() {
	d.mu.Lock()
	defer d.mu.Unlock()
	maps.DeleteFunc(d.classes, func(_ string, c *devicepool.SoundClass) bool {
		return c.Parent != nil && d.classes[c.Parent.Name] != c.Parent
	})
}

func (d *Device) RegisterSubmix(submix *devicepool.Submix) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submixes[submix.Name] = submix
}

func (d *Device) UnregisterSubmix(submix *devicepool.Submix) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.submixes[submix.Name] == submix {
		delete(d.submixes, submix.Name)
	}
}

// InitSoundSubmixes drops submixes whose parent is no longer registered.
func (d *Device) InitSoundSubmixes() {
	d.mu.Lock()
	defer d.mu.Unlock()
	maps.DeleteFunc(d.submixes, func(_ string, s *devicepool.Submix) bool {
		return s.Parent != nil && d.submixes[s.Parent.Name] != s.Parent
	})
}

func (d *Device) InitEffectPresets() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presetsReady = true
}

func (d *Device) UpdateSourceEffectChain(id uint32, chain []devicepool.EffectChainEntry, _ bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(chain) == 0 {
		delete(d.effectChains, id)
		return
	}
	d.effectChains[id] = chain
}

// PushSoundMix activates mix. It stays active until RemoveSoundMix.
func (d *Device) PushSoundMix(mix *devicepool.SoundMix) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !slices.Contains(d.mixes, mix) {
		d.mixes = append(d.mixes, mix)
	}
}

func (d *Device) RemoveSoundMix(mix *devicepool.SoundMix) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mixes = slices.DeleteFunc(d.mixes, func(m *devicepool.SoundMix) bool { return m == mix })
}

func (d *Device) SetDebugState(state devicepool.DebugState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.debug = state
}

func (d *Device) AddReferencedObjects(collector devicepool.ReferenceCollector) {
	d.mu.Lock()
	defer d.mu.Unlock()

	owner := "software:" + d.Handle().String()
	for _, name := range slices.Sorted(maps.Keys(d.classes)) {
		collector.AddReferencedObject(owner, d.classes[name])
	}
	for _, name := range slices.Sorted(maps.Keys(d.submixes)) {
		collector.AddReferencedObject(owner, d.submixes[name])
	}
	for _, mix := range d.mixes {
		collector.AddReferencedObject(owner, mix)
	}
	for _, v := range d.voices {
		collector.AddReferencedObject(owner, v.buf)
	}
}

// Output returns the rendered int16 little endian stream.
func (d *Device) Output() io.Reader {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ring
}

// Stats is a snapshot of device state for diagnostics.
type Stats struct {
	Voices         int    `json:"voices"`
	MaxChannels    int    `json:"max_channels"`
	Muted          bool   `json:"muted"`
	BufferedBytes  int    `json:"buffered_bytes"`
	Overruns       uint64 `json:"overruns"`
	RenderedFrames uint64 `json:"rendered_frames"`
	SoundClasses   int    `json:"sound_classes"`
	Submixes       int    `json:"submixes"`
	ActiveMixes    int    `json:"active_mixes"`
	EffectChains   int    `json:"effect_chains"`
}

func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Stats{
		Voices:         len(d.voices),
		MaxChannels:    d.maxChannels,
		Muted:          d.muted,
		Overruns:       d.overruns.Load(),
		RenderedFrames: d.rendered.Load(),
		SoundClasses:   len(d.classes),
		Submixes:       len(d.submixes),
		ActiveMixes:    len(d.mixes),
		EffectChains:   len(d.effectChains),
	}
	if d.ring != nil {
		s.BufferedBytes = d.ring.Length()
	}
	return s
}
