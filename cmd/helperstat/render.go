package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"

	"github.com/utkarsh5026/helperpool/helper"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
)

func printSectionHeader(w io.Writer, title string, descriptions ...string) {
	fmt.Fprintln(w)
	_, _ = bold.Fprintln(w, "═══════════════════════════════════════════════════════════")
	_, _ = bold.Fprintln(w, title)
	_, _ = bold.Fprintln(w, "═══════════════════════════════════════════════════════════")
	for _, desc := range descriptions {
		fmt.Fprintln(w, desc)
	}
	fmt.Fprintln(w)
}

func makeProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Draining tasks"),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(w),
		progressbar.OptionThrottle(65*time.Millisecond),
	)
}

func renderPolicy(w io.Writer, s helper.Stats, stackQuota int) error {
	printSectionHeader(w, "THREAD POLICY",
		fmt.Sprintf("  CPUs: %d   Threads: %d   Stack quota: %s", s.CPUCount, s.ThreadCount, formatBytes(stackQuota)),
		"  Master kinds never take the last idle thread.")

	table := tablewriter.NewWriter(w)
	table.Header("Kind", "Max Threads", "Master")
	for _, k := range s.Kinds {
		master := ""
		if k.Kind.IsMaster() {
			master = "yes"
		}
		_ = table.Append(k.Kind.String(), limitString(k, s.ThreadCount), master)
	}
	return table.Render()
}

func renderStats(w io.Writer, s helper.Stats, elapsed time.Duration) error {
	printSectionHeader(w, "SCHEDULING",
		fmt.Sprintf("  Drained in %s on %d threads (%d CPUs)", elapsed.Round(time.Millisecond), s.ThreadCount, s.CPUCount))

	table := tablewriter.NewWriter(w)
	table.Header("Kind", "Completed", "Queued", "Running", "Finished", "Max Threads")
	for _, k := range s.Kinds {
		_ = table.Append(
			k.Kind.String(),
			strconv.FormatUint(k.Completed, 10),
			strconv.Itoa(k.Queued),
			strconv.Itoa(k.Running),
			strconv.Itoa(k.Finished),
			limitString(k, s.ThreadCount),
		)
	}
	return table.Render()
}

func renderMemory(w io.Writer, r helper.MemoryReport) error {
	printSectionHeader(w, "MEMORY",
		fmt.Sprintf("  Active threads: %d   Idle threads: %d", r.ActiveThreads, r.IdleThreads))

	table := tablewriter.NewWriter(w)
	table.Header("Kind", "Queued", "Finished")
	for _, k := range helper.ThreadKinds() {
		q, f := r.Queued[k], r.Finished[k]
		if q == 0 && f == 0 {
			continue
		}
		_ = table.Append(k.String(), formatBytes(q), formatBytes(f))
	}
	_ = table.Append("pending compressions", formatBytes(r.PendingCompressions), "")
	_ = table.Append("lazy links", "", formatBytes(r.LazyLinks))
	_ = table.Append("coordinator state", formatBytes(r.StateData), "")
	if err := table.Render(); err != nil {
		return err
	}

	_, _ = bold.Fprintf(w, "Total retained: %s\n", formatBytes(r.Total()))
	return nil
}

func limitString(k helper.KindStats, threads int) string {
	switch {
	case k.Kind == helper.ThreadKindJitFree:
		return "unbounded"
	case k.MaxThreads >= threads:
		return strconv.Itoa(k.MaxThreads) + " (all)"
	default:
		return strconv.Itoa(k.MaxThreads)
	}
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
