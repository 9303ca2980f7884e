//go:build linux

package hw

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// LockMemory pins the process's pages in RAM so that page faults do not
// delay the sampling loop. It needs CAP_IPC_LOCK or a large enough
// RLIMIT_MEMLOCK.
func LockMemory() error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("mlockall: %w", err)
	}
	return nil
}
