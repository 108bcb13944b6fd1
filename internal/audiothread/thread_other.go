//go:build !linux && !windows

package audiothread

import (
	"bytes"
	"runtime"
	"strconv"
)

// currentThreadID falls back to the goroutine id on platforms without a
// cheap per-thread identifier. The audio goroutine is pinned with
// LockOSThread so the two identify the same execution context.
func currentThreadID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// "goroutine 123 [running]: ..."
	field := bytes.Fields(buf[:n])
	if len(field) < 2 {
		return -1
	}
	id, err := strconv.ParseInt(string(field[1]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}

// setThreadPriority is a no-op here; process wide priority changes would
// affect the control thread as well.
func setThreadPriority(int) error {
	return nil
}
