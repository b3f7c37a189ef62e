//go:build linux
// +build linux

// File: internal/concurrency/affinity_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CPU affinity for goroutines locked to their OS thread.

package concurrency

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// NumCPUs returns the number of logical CPUs.
func NumCPUs() int {
	return runtime.NumCPU()
}

// PinCurrentThread locks the calling goroutine to its OS thread and binds
// that thread to cpu. It returns the previous mask for UnpinCurrentThread.
// On error the thread lock is released again.
func PinCurrentThread(cpu int) (unix.CPUSet, error) {
	var prev unix.CPUSet
	if cpu < 0 || cpu >= NumCPUs() {
		return prev, fmt.Errorf("pin: cpu %d out of range [0,%d)", cpu, NumCPUs())
	}
	runtime.LockOSThread()
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		runtime.UnlockOSThread()
		return prev, fmt.Errorf("pin: get affinity: %w", err)
	}
	var set unix.CPUSet
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		runtime.UnlockOSThread()
		return prev, fmt.Errorf("pin: set affinity to cpu %d: %w", cpu, err)
	}
	return prev, nil
}

// UnpinCurrentThread restores prev on the calling thread. The goroutine
// stays locked; the caller owns UnlockOSThread.
func UnpinCurrentThread(prev unix.CPUSet) error {
	if prev.Count() == 0 {
		return nil
	}
	if err := unix.SchedSetaffinity(0, &prev); err != nil {
		return fmt.Errorf("unpin: %w", err)
	}
	return nil
}
