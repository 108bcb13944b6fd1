package soundbuffer

import (
	"path/filepath"
	"strings"
	"sync/atomic"
)

// Wave is a sound asset backed by a file. It carries the resource id of the
// buffer decoded from it, 0 while no buffer is tracked.
type Wave struct {
	name string
	path string
	id   atomic.Int64
}

// NewWave returns a Wave for path, named after the file without extension.
func NewWave(path string) *Wave {
	base := filepath.Base(path)
	return &Wave{
		name: strings.TrimSuffix(base, filepath.Ext(base)),
		path: path,
	}
}

func (w *Wave) Name() string { return w.name }

func (w *Wave) Path() string { return w.path }

func (w *Wave) ResourceID() int { return int(w.id.Load()) }

func (w *Wave) SetResourceID(id int) { w.id.Store(int64(id)) }
