package devicepool

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/audiopool/internal/conf"
)

// ResourceTracker maps resource ids to the sound buffers shared by every
// device. Ids are unique per tracker, start at 1 and never repeat.
type ResourceTracker struct {
	manager *Manager
	logger  *slog.Logger

	mu      sync.Mutex
	nextID  int
	buffers map[int]BufferResource
	names   map[int]string
	live    []BufferResource

	// freed remembers recently released ids so late lookups can be explained
	freed     *cache.Cache
	retention time.Duration
}

// FreedRecord describes a buffer that was released.
type FreedRecord struct {
	ID      int       `json:"id"`
	Name    string    `json:"name"`
	Size    int       `json:"size"`
	FreedAt time.Time `json:"freed_at"`
}

func newResourceTracker(m *Manager, settings conf.ResourceSettings) *ResourceTracker {
	rt := &ResourceTracker{
		manager:   m,
		logger:    m.logger.With("component", "resource_tracker"),
		buffers:   make(map[int]BufferResource),
		names:     make(map[int]string),
		retention: settings.FreedRetention,
	}
	if rt.retention > 0 {
		// No janitor goroutine; expired entries are swept on each free.
		rt.freed = cache.New(rt.retention, 0)
	}
	return rt
}

// Track registers buf under a new resource id and stamps the id on buf and
// asset. asset may be nil for buffers without a source asset.
func (rt *ResourceTracker) Track(asset Asset, buf BufferResource) int {
	if buf == nil {
		return 0
	}

	rt.mu.Lock()
	rt.nextID++
	id := rt.nextID
	rt.buffers[id] = buf
	rt.live = append(rt.live, buf)
	name := buf.ResourceName()
	if name == "" && asset != nil {
		name = asset.Name()
	}
	rt.names[id] = name
	count, bytes := rt.statsLocked()
	rt.mu.Unlock()

	buf.SetResourceID(id)
	if asset != nil {
		asset.SetResourceID(id)
	}

	rt.manager.metrics.SetTrackedBuffers(count, bytes)
	rt.logger.Debug("sound buffer tracked",
		"resource_id", id,
		"name", name,
		"size", buf.Size())
	return id
}

// Free releases the buffer tracked for asset, if any, and clears the asset's id.
func (rt *ResourceTracker) Free(asset Asset) {
	if asset == nil || asset.ResourceID() == 0 {
		return
	}
	if buf, ok := rt.Lookup(asset.ResourceID()); ok {
		rt.FreeBufferResource(buf)
	}
	asset.SetResourceID(0)
}

// FreeBufferResource releases buf. It waits for any pending decode, removes
// the buffer from the tracker, waits until every device has stopped every
// source reading it, then releases the samples. A nil buf is ignored.
func (rt *ResourceTracker) FreeBufferResource(buf BufferResource) {
	if buf == nil {
		return
	}

	buf.WaitForDecode()

	id := buf.ResourceID()
	rt.mu.Lock()
	if i := slices.Index(rt.live, buf); i >= 0 {
		rt.live = slices.Delete(rt.live, i, i+1)
	}
	name, known := rt.names[id]
	if tracked, ok := rt.buffers[id]; ok && tracked == buf {
		delete(rt.buffers, id)
		delete(rt.names, id)
	}
	if !known {
		name = buf.ResourceName()
	}
	count, bytes := rt.statsLocked()
	rt.mu.Unlock()

	// Never hold rt.mu across the audio thread round trip.
	if err := rt.manager.stopSourcesUsingBufferSync(context.Background(), buf); err != nil {
		rt.logger.Error("failed to stop sources before freeing buffer",
			"resource_id", id,
			"name", name,
			"error", err)
	}

	size := buf.Size()
	buf.Release()

	if rt.freed != nil {
		rt.freed.DeleteExpired()
		rt.freed.SetDefault(strconv.Itoa(id), FreedRecord{
			ID:      id,
			Name:    name,
			Size:    size,
			FreedAt: time.Now(),
		})
	}

	rt.manager.metrics.RecordBufferFreed()
	rt.manager.metrics.SetTrackedBuffers(count, bytes)
	rt.logger.Debug("sound buffer freed",
		"resource_id", id,
		"name", name,
		"size", size)
}

// Lookup returns the buffer tracked under id.
func (rt *ResourceTracker) Lookup(id int) (BufferResource, bool) {
	rt.mu.Lock()
	buf, ok := rt.buffers[id]
	rt.mu.Unlock()

	if !ok {
		if rec, freed := rt.Freed(id); freed {
			rt.logger.Debug("lookup of freed sound buffer",
				"resource_id", id,
				"name", rec.Name,
				"freed_ago", time.Since(rec.FreedAt).Round(time.Millisecond))
		}
	}
	return buf, ok
}

// Remove drops id from the id map without releasing the buffer.
func (rt *ResourceTracker) Remove(id int) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.buffers, id)
	delete(rt.names, id)
}

// Freed returns the record of a recently freed id.
func (rt *ResourceTracker) Freed(id int) (FreedRecord, bool) {
	if rt.freed == nil {
		return FreedRecord{}, false
	}
	v, ok := rt.freed.Get(strconv.Itoa(id))
	if !ok {
		return FreedRecord{}, false
	}
	rec, ok := v.(FreedRecord)
	return rec, ok
}

// Buffers returns the live buffers in tracking order.
func (rt *ResourceTracker) Buffers() []BufferResource {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return slices.Clone(rt.live)
}

// Len returns the number of live buffers.
func (rt *ResourceTracker) Len() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.live)
}

func (rt *ResourceTracker) statsLocked() (count int, bytes int64) {
	for _, buf := range rt.live {
		bytes += int64(buf.Size())
	}
	return len(rt.live), bytes
}
