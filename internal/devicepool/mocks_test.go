package devicepool

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/tphakala/audiopool/internal/audiothread"
)

// eventLog records cross-object call order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

// mockDevice is a Device that records what the pool asks of it.
type mockDevice struct {
	HandleStamp

	name    string
	log     *eventLog
	initErr error
	thread  *audiothread.Thread

	mu                sync.Mutex
	initChannels      int
	maxChannels       int
	muted             bool
	fadeIns           int
	updates           int
	tornDown          bool
	playing           map[PlaybackID]BufferResource
	nextPlayback      PlaybackID
	classes           []*SoundClass
	submixes          []*Submix
	removedMixes      []*SoundMix
	effectChains      map[uint32][]EffectChainEntry
	debug             DebugState
	classInits        int
	submixInits       int
	presetInits       int
	onAudioThreadSeen []bool
}

func (d *mockDevice) Init(maxChannels int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initChannels = maxChannels
	d.maxChannels = maxChannels
	return d.initErr
}

func (d *mockDevice) SetMaxChannels(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maxChannels = n
}

func (d *mockDevice) MaxChannels() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxChannels
}

func (d *mockDevice) Update(bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates++
}

func (d *mockDevice) FadeIn() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fadeIns++
}

func (d *mockDevice) SetMuted(muted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.muted = muted
}

func (d *mockDevice) IsMuted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.muted
}

func (d *mockDevice) Teardown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tornDown = true
	d.playing = nil
	d.log.add("%s teardown", d.name)
}

// play starts buf unless it is no longer tracked by rt.
func (d *mockDevice) play(rt *ResourceTracker, buf BufferResource) (PlaybackID, error) {
	if tracked, ok := rt.Lookup(buf.ResourceID()); !ok || tracked != buf {
		return 0, fmt.Errorf("buffer %d is not tracked", buf.ResourceID())
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playing == nil {
		d.playing = make(map[PlaybackID]BufferResource)
	}
	d.nextPlayback++
	d.playing[d.nextPlayback] = buf
	return d.nextPlayback, nil
}

func (d *mockDevice) references(buf BufferResource) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.playing {
		if b == buf {
			return true
		}
	}
	return false
}

func (d *mockDevice) StopSoundsUsingResource(asset Asset) []PlaybackID {
	d.mu.Lock()
	defer d.mu.Unlock()
	var stopped []PlaybackID
	for id, b := range d.playing {
		if b.ResourceID() == asset.ResourceID() {
			stopped = append(stopped, id)
			delete(d.playing, id)
		}
	}
	slices.Sort(stopped)
	return stopped
}

func (d *mockDevice) StopSourcesUsingBuffer(buf BufferResource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, b := range d.playing {
		if b == buf {
			delete(d.playing, id)
		}
	}
	d.recordThreadLocked()
	d.log.add("%s stop %s", d.name, buf.ResourceName())
}

func (d *mockDevice) RegisterSoundClass(class *SoundClass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.classes = append(d.classes, class)
	d.recordThreadLocked()
}

func (d *mockDevice) UnregisterSoundClass(class *SoundClass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.classes = slices.DeleteFunc(d.classes, func(c *SoundClass) bool { return c == class })
}

func (d *mockDevice) InitSoundClasses() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.classInits++
}

func (d *mockDevice) RegisterSubmix(submix *Submix) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submixes = append(d.submixes, submix)
}

func (d *mockDevice) UnregisterSubmix(submix *Submix) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submixes = slices.DeleteFunc(d.submixes, func(s *Submix) bool { return s == submix })
}

func (d *mockDevice) InitSoundSubmixes() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submixInits++
}

func (d *mockDevice) InitEffectPresets() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presetInits++
}

func (d *mockDevice) UpdateSourceEffectChain(id uint32, chain []EffectChainEntry, _ bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.effectChains == nil {
		d.effectChains = make(map[uint32][]EffectChainEntry)
	}
	d.effectChains[id] = chain
}

func (d *mockDevice) RemoveSoundMix(mix *SoundMix) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removedMixes = append(d.removedMixes, mix)
}

func (d *mockDevice) SetDebugState(state DebugState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.debug = state
}

func (d *mockDevice) AddReferencedObjects(collector ReferenceCollector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.classes {
		collector.AddReferencedObject(d.name, c)
	}
}

func (d *mockDevice) recordThreadLocked() {
	if d.thread != nil {
		d.onAudioThreadSeen = append(d.onAudioThreadSeen, d.thread.IsAudioThread())
	}
}

// deviceState is a copy of what a mockDevice has recorded.
type deviceState struct {
	initChannels      int
	maxChannels       int
	muted             bool
	fadeIns           int
	updates           int
	tornDown          bool
	classes           []*SoundClass
	submixes          []*Submix
	removedMixes      []*SoundMix
	effectChains      map[uint32][]EffectChainEntry
	debug             DebugState
	classInits        int
	submixInits       int
	presetInits       int
	onAudioThreadSeen []bool
}

func (d *mockDevice) snapshot() deviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return deviceState{
		initChannels:      d.initChannels,
		maxChannels:       d.maxChannels,
		muted:             d.muted,
		fadeIns:           d.fadeIns,
		updates:           d.updates,
		tornDown:          d.tornDown,
		classes:           slices.Clone(d.classes),
		submixes:          slices.Clone(d.submixes),
		removedMixes:      slices.Clone(d.removedMixes),
		effectChains:      maps.Clone(d.effectChains),
		debug:             d.debug.clone(),
		classInits:        d.classInits,
		submixInits:       d.submixInits,
		presetInits:       d.presetInits,
		onAudioThreadSeen: slices.Clone(d.onAudioThreadSeen),
	}
}

// mockFactory builds mockDevices.
type mockFactory struct {
	log    *eventLog
	thread *audiothread.Thread

	mu        sync.Mutex
	devices   []*mockDevice
	failNext  error // returned from CreateDevice once
	initFails error // returned from the next device's Init once
	created   atomic.Int32
}

func (f *mockFactory) CreateDevice() (Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failNext; err != nil {
		f.failNext = nil
		return nil, err
	}

	n := f.created.Add(1)
	dev := &mockDevice{
		name:    fmt.Sprintf("dev%d", n),
		log:     f.log,
		thread:  f.thread,
		initErr: f.initFails,
	}
	f.initFails = nil
	f.devices = append(f.devices, dev)
	return dev, nil
}

func (f *mockFactory) device(i int) *mockDevice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices[i]
}

// mockBuffer is a BufferResource that records its lifecycle.
type mockBuffer struct {
	name string
	size int
	log  *eventLog

	id       atomic.Int64
	waited   atomic.Bool
	released atomic.Bool
	// holders are checked on Release; none may still reference the buffer
	holders []*mockDevice
	leaked  atomic.Bool
}

func (b *mockBuffer) ResourceID() int      { return int(b.id.Load()) }
func (b *mockBuffer) SetResourceID(id int) { b.id.Store(int64(id)) }
func (b *mockBuffer) ResourceName() string { return b.name }
func (b *mockBuffer) Size() int            { return b.size }

func (b *mockBuffer) WaitForDecode() {
	b.waited.Store(true)
	b.log.add("%s wait", b.name)
}

func (b *mockBuffer) Release() {
	for _, d := range b.holders {
		if d.references(b) {
			b.leaked.Store(true)
		}
	}
	b.released.Store(true)
	b.log.add("%s release", b.name)
}

// mockAsset is an Asset.
type mockAsset struct {
	name string
	id   int
}

func (a *mockAsset) ResourceID() int      { return a.id }
func (a *mockAsset) SetResourceID(id int) { a.id = id }
func (a *mockAsset) Name() string         { return a.name }

// collector gathers AddReferencedObjects calls.
type collector struct {
	refs map[string][]any
}

func (c *collector) AddReferencedObject(owner string, object any) {
	if c.refs == nil {
		c.refs = make(map[string][]any)
	}
	c.refs[owner] = append(c.refs[owner], object)
}
