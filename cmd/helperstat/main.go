// Command helperstat drives a synthetic workload through a helper
// coordinator and reports how the work was scheduled.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
