package helper

import "time"

// dispatchLocked asks the execution substrate for one more call to
// RunOneTask, as long as some task could start and fewer dispatches than
// workers are outstanding.
//
// This does not guarantee that no more dispatches are issued than strictly
// necessary when tasks are slow to start, but it bounds the excess by the
// worker count.
func (c *Coordinator) dispatchLocked(reason DispatchReason) {
	if !c.initialized || c.terminating {
		return
	}
	if !c.canStartTasksLocked() || c.tasksPending >= c.threadCount {
		return
	}

	c.tasksPending++
	c.metrics.Dispatched(reason)
	c.log.Debug().Stringer("reason", reason).Int("pending", c.tasksPending).Msg("dispatch")

	if c.useInternalPool {
		if err := c.pool.Dispatch(); err != nil {
			c.tasksPending--
			c.log.Warn().Err(err).Msg("internal pool refused dispatch")
		}
		return
	}

	if c.dispatchLimiter != nil {
		if delay := c.dispatchLimiter.Reserve().Delay(); delay > 0 {
			time.AfterFunc(delay, func() {
				c.lock()
				defer c.unlock()
				c.dispatchCallback(reason)
			})
			return
		}
	}
	c.dispatchCallback(reason)
}

// WaitForAllTasks cancels the tier-2 generator and then blocks until no task
// can start, none is running and no dispatch is outstanding.
func (c *Coordinator) WaitForAllTasks() {
	c.lock()
	defer c.unlock()

	if !c.initialized {
		return
	}
	c.waitForAllTasksLocked()
}

func (c *Coordinator) waitForAllTasksLocked() {
	c.cancelTier2GeneratorLocked()

	for c.canStartTasksLocked() || c.tasksPending > 0 || c.totalRunning > 0 {
		c.waitLocked()
	}
}
