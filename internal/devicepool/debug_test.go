package devicepool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayAllDeviceAudio(t *testing.T) {
	t.Parallel()

	m, f := newTestManager(t)
	mustCreate(t, m, true)
	mustCreate(t, m, true)
	mustCreate(t, m, true)
	require.True(t, f.device(1).IsMuted())

	assert.True(t, m.TogglePlayAllDeviceAudio())
	assert.True(t, m.IsPlayAllDeviceAudio())
	for i := range 3 {
		assert.False(t, f.device(i).IsMuted())
		assert.True(t, f.device(i).snapshot().debug.PlayAllDeviceAudio)
	}

	// Devices created during play-all join audible.
	mustCreate(t, m, true)
	assert.False(t, f.device(3).IsMuted())

	assert.False(t, m.TogglePlayAllDeviceAudio())
	assert.False(t, f.device(0).IsMuted())
	for i := 1; i < 4; i++ {
		assert.True(t, f.device(i).IsMuted())
		assert.False(t, f.device(i).snapshot().debug.PlayAllDeviceAudio)
	}
}

func TestDebugToggles(t *testing.T) {
	t.Parallel()

	m, f := newTestManager(t)
	mustCreate(t, m, true)

	assert.True(t, m.ToggleVisualize3dDebug())
	assert.True(t, m.IsVisualizeDebug3dEnabled())
	assert.False(t, m.ToggleVisualize3dDebug())

	assert.True(t, m.ToggleDebugStat("voices"))
	assert.True(t, m.ToggleDebugStat("latency"))
	assert.Equal(t, []string{"latency", "voices"}, m.DebugState().EnabledStats)
	assert.False(t, m.ToggleDebugStat("voices"))

	m.SetDebugSoloSoundClass("music")
	m.SetDebugSoloSoundWave("theme.wav")
	m.SetDebugSoloSoundCue("victory")
	m.SetAudioMixerDebugSound("footstep")

	got := f.device(0).snapshot().debug
	assert.Equal(t, DebugState{
		SoloSoundClass:  "music",
		SoloSoundWave:   "theme.wav",
		SoloSoundCue:    "victory",
		MixerDebugSound: "footstep",
		EnabledStats:    []string{"latency"},
	}, got)

	// Returned state is a copy.
	state := m.DebugState()
	state.EnabledStats[0] = "mutated"
	assert.Equal(t, []string{"latency"}, m.DebugState().EnabledStats)
}

func TestParseSortBy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    SortBy
		wantErr bool
	}{
		{"", SortBySize, false},
		{"size", SortBySize, false},
		{"name", SortByName, false},
		{"age", SortBySize, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSortBy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListSoundBuffers(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	rt := m.Resources()

	rt.Track(nil, &mockBuffer{name: "beta", size: 2048})
	rt.Track(nil, &mockBuffer{name: "Alpha", size: 512})
	rt.Track(nil, &mockBuffer{name: "gamma", size: 4096})
	rt.Track(nil, &mockBuffer{name: "alpha", size: 4096})

	bySize := rt.ListSoundBuffers(SortBySize, false)
	assert.Equal(t, int64(2048+512+4096+4096), bySize.TotalBytes)
	assert.Equal(t, []string{"gamma", "alpha", "beta", "Alpha"}, listingNames(bySize))
	assert.Equal(t, "    2.00kb beta", bySize.Buffers[2].Description)

	byName := rt.ListSoundBuffers(SortByName, true)
	assert.Equal(t, []string{"Alpha", "alpha", "beta", "gamma"}, listingNames(byName))
	assert.Equal(t, []int{2, 4, 1, 3}, listingIDs(byName))
}

func listingNames(l BufferListing) []string {
	names := make([]string, 0, len(l.Buffers))
	for _, b := range l.Buffers {
		names = append(names, b.Name)
	}
	return names
}

func listingIDs(l BufferListing) []int {
	ids := make([]int, 0, len(l.Buffers))
	for _, b := range l.Buffers {
		ids = append(ids, b.ID)
	}
	return ids
}
