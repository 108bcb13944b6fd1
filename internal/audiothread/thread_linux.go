//go:build linux

package audiothread

import (
	"golang.org/x/sys/unix"
)

// currentThreadID returns the kernel id of the calling OS thread.
func currentThreadID() int64 {
	return int64(unix.Gettid())
}

// setThreadPriority applies a nice value to the calling OS thread only.
// Negative values need CAP_SYS_NICE or a raised RLIMIT_NICE.
func setThreadPriority(priority int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), priority)
}
