//go:build windows

package audiothread

import (
	"fmt"

	"golang.org/x/sys/windows"
)

const (
	threadPriorityHighest      = 2
	threadPriorityTimeCritical = 15
)

var procSetThreadPriority = windows.NewLazySystemDLL("kernel32.dll").NewProc("SetThreadPriority")

func currentThreadID() int64 {
	return int64(windows.GetCurrentThreadId())
}

// setThreadPriority maps a unix style nice value onto a Win32 thread priority.
func setThreadPriority(priority int) error {
	level := threadPriorityHighest
	if priority <= -15 {
		level = threadPriorityTimeCritical
	}
	r, _, err := procSetThreadPriority.Call(uintptr(windows.CurrentThread()), uintptr(level))
	if r == 0 {
		return fmt.Errorf("SetThreadPriority: %w", err)
	}
	return nil
}
