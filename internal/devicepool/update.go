package devicepool

import (
	"time"
)

// UpdateAll runs one update pass over every live device. It first waits
// for the previous pass's fence so the queued mix state changes of pass N
// have landed before pass N+1 starts, then re-arms the fence.
func (m *Manager) UpdateAll(gameTicking bool) {
	waitStart := time.Now()
	m.fence.Wait()
	m.metrics.RecordFenceWait(time.Since(waitStart))

	passStart := time.Now()
	m.mu.RLock()
	m.slots.live(func(_ uint32, dev Device) {
		dev.Update(gameTicking)
	})
	m.mu.RUnlock()
	m.metrics.RecordUpdatePass(time.Since(passStart))

	m.fence.Begin()
}
