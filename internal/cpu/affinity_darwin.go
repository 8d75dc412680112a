//go:build darwin

package cpu

import (
	"runtime"
)

// Count returns the number of logical CPUs available.
func Count() int {
	return runtime.NumCPU()
}

// SetupWorkerAffinity locks the goroutine to an OS thread.
// CPU pinning is not available on macOS.
func SetupWorkerAffinity(workerID int) func() {
	runtime.LockOSThread()

	return func() {
		runtime.UnlockOSThread()
	}
}
