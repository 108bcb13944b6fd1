package devicepool

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Handle identifies a device slot. The low 24 bits hold the slot index, the
// high 8 bits the slot generation at the time the handle was minted.
type Handle uint32

const (
	indexBits      = 24
	generationBits = 8
	indexMask      = 1<<indexBits - 1

	// MaxSlots is the capacity ceiling of the slot table.
	MaxSlots = 1 << indexBits

	// NoHandle never refers to a device.
	NoHandle Handle = math.MaxUint32
)

// MakeHandle packs a slot index and generation. Indices at or above MaxSlots
// are a caller bug and are truncated.
func MakeHandle(index uint32, generation uint8) Handle {
	return Handle(uint32(generation)<<indexBits | index&indexMask)
}

// IndexOf returns the slot index of h.
func IndexOf(h Handle) uint32 {
	return uint32(h) & indexMask
}

// GenerationOf returns the generation of h.
func GenerationOf(h Handle) uint8 {
	return uint8(uint32(h) >> indexBits)
}

// String renders the handle as index/generation for logs.
func (h Handle) String() string {
	if h == NoHandle {
		return "none"
	}
	return fmt.Sprintf("%d/%d", IndexOf(h), GenerationOf(h))
}

// HandleStamp stores the handle the pool assigned to a device. Embed it in a
// Device implementation to satisfy Handle and SetHandle.
type HandleStamp struct {
	// inverted so the zero value reads as NoHandle
	inv atomic.Uint32
}

// Handle returns the stamped handle, NoHandle before the pool assigns one.
func (s *HandleStamp) Handle() Handle {
	return Handle(^s.inv.Load())
}

// SetHandle records the handle assigned by the pool.
func (s *HandleStamp) SetHandle(h Handle) {
	s.inv.Store(^uint32(h))
}
