//go:build linux

package cpu

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinToCore pins the current OS thread to a specific CPU core.
// Must be called after runtime.LockOSThread().
//
// cpuID is wrapped into the range of usable CPUs.
func pinToCore(cpuID int) (int, error) {
	numCPU := Count()
	if cpuID < 0 || cpuID >= numCPU {
		cpuID = cpuID % numCPU
		if cpuID < 0 {
			cpuID += numCPU
		}
	}

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(cpuID)

	if err := unix.SchedSetaffinity(0, &mask); err != nil { // 0 = current thread
		return 0, err
	}
	return cpuID, nil
}

// Count returns the number of logical CPUs this process may run on.
//
// The affinity mask is consulted first so that a process restricted by
// taskset or a cgroup cpuset sees its real budget. runtime.NumCPU is the
// fallback when the mask cannot be read.
func Count() int {
	var mask unix.CPUSet
	if err := unix.SchedGetaffinity(0, &mask); err == nil {
		if n := mask.Count(); n > 0 {
			return n
		}
	}
	return runtime.NumCPU()
}

// SetupWorkerAffinity locks the calling goroutine to an OS thread and pins
// that thread to the core selected by workerID.
// Returns a cleanup function that should be deferred.
func SetupWorkerAffinity(workerID int) func() {
	runtime.LockOSThread()
	_, _ = pinToCore(workerID)

	return func() {
		runtime.UnlockOSThread()
	}
}
