package helper

const (
	// DefaultCPUCeiling caps the probed CPU count. Beyond a handful of cores
	// the extra workers mostly add stack memory and lock contention.
	DefaultCPUCeiling = 8

	// MinThreadCount is the smallest worker count. A master task holds one
	// worker while another does the work it waits on.
	MinThreadCount = 2

	// DefaultTier2BacklogThreshold is the tier-2 generator queue depth above
	// which background tier-2 compilation gets the full wasm budget and
	// tier-1 compilation is paused.
	DefaultTier2BacklogThreshold = 20

	// DefaultBackgroundCoreDivisor estimates physical cores from logical
	// ones for background tier-2 work: ceil(cpus / divisor).
	DefaultBackgroundCoreDivisor = 3

	// MinDispatchStackSize is the smallest stack an external thread pool may
	// advertise.
	MinDispatchStackSize = 16 * 1024

	// DefaultStackSize is the stack size assumed for internal workers.
	DefaultStackSize = 2 * 1024 * 1024

	// MaxTier2GeneratorTasks is the number of tier-2 generators that may
	// run at once. Cancellation relies on it being one.
	MaxTier2GeneratorTasks = 1

	maxCompressionThreads = 1
)

// ClampCPUCount limits a probed CPU count to ceiling. A non-positive ceiling
// disables the clamp.
func ClampCPUCount(cpus, ceiling int) int {
	if ceiling <= 0 {
		return cpus
	}
	return min(cpus, ceiling)
}

// ThreadCountForCPUCount returns the worker count used for cpus logical CPUs.
func ThreadCountForCPUCount(cpus int) int {
	return max(cpus, MinThreadCount)
}

// StackQuotaForSize returns the usable stack budget for a thread with the
// given stack size, leaving ten percent of headroom.
func StackQuotaForSize(size int) int {
	return int(float64(size) * 0.9)
}

// backgroundCores estimates how many physical cores are free for
// background work.
func backgroundCores(cpus, divisor int) int {
	if divisor <= 1 {
		return cpus
	}
	return (cpus + divisor - 1) / divisor
}
