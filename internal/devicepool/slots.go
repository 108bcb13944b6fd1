package devicepool

// slotTable is a generational arena of devices. A nil slot is free; a live
// slot's device always carries MakeHandle(index, generations[index]).
// It is not safe for concurrent use; the Manager serializes access.
type slotTable struct {
	slots       []Device
	generations []uint8
	freeIndices []uint32 // FIFO
	// minFreeIndices freed indices are kept back before reuse, widening the
	// window before a generation can come around again.
	minFreeIndices int
}

func newSlotTable(minFreeIndices int) *slotTable {
	return &slotTable{minFreeIndices: max(minFreeIndices, 0)}
}

// allocate reserves a slot and returns its index and current generation.
// The slot stays nil until set is called.
func (s *slotTable) allocate() (index uint32, generation uint8, ok bool) {
	if len(s.freeIndices) > s.minFreeIndices {
		index = s.freeIndices[0]
		s.freeIndices = s.freeIndices[1:]
		return index, s.generations[index], true
	}

	if len(s.slots) >= MaxSlots {
		return 0, 0, false
	}
	index = uint32(len(s.slots))
	s.slots = append(s.slots, nil)
	s.generations = append(s.generations, 0)
	return index, 0, true
}

// set stores dev in an allocated slot.
func (s *slotTable) set(index uint32, dev Device) {
	s.slots[index] = dev
}

// release bumps the generation, frees the slot and queues the index for reuse.
// The generation wraps at 256; a handle that old can alias the slot again.
func (s *slotTable) release(index uint32) {
	s.generations[index]++
	s.slots[index] = nil
	s.freeIndices = append(s.freeIndices, index)
}

// isValid reports whether h matches its slot's current generation.
func (s *slotTable) isValid(h Handle) bool {
	index := IndexOf(h)
	return index < uint32(len(s.generations)) && s.generations[index] == GenerationOf(h)
}

// get returns the live device for h, or nil.
func (s *slotTable) get(h Handle) Device {
	if !s.isValid(h) {
		return nil
	}
	return s.slots[IndexOf(h)]
}

// live calls fn for every non-nil slot in index order.
func (s *slotTable) live(fn func(index uint32, dev Device)) {
	for i, dev := range s.slots {
		if dev != nil {
			fn(uint32(i), dev)
		}
	}
}

// count returns the number of live slots.
func (s *slotTable) count() int {
	n := 0
	for _, dev := range s.slots {
		if dev != nil {
			n++
		}
	}
	return n
}
