package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/utkarsh5026/helperpool/helper"
	"github.com/utkarsh5026/helperpool/helper/metrics"
	"github.com/utkarsh5026/helperpool/internal/logging"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit a mixed workload and report how it was scheduled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := loadOptions(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), o)
		},
	}

	f := cmd.Flags()
	f.Int("tasks", 500, "Number of tasks to submit")
	f.Bool("external-dispatch", false, "Drive the coordinator through a dispatch callback instead of the internal pool")
	f.Float64("dispatch-rate", 0, "Dispatches per second allowed to the external callback (0 is unlimited)")
	f.Bool("affinity", false, "Pin internal workers to CPU cores")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	f.Bool("no-progress", false, "Do not draw a progress bar")
	return cmd
}

func run(ctx context.Context, out, errOut io.Writer, o options) error {
	if o.Tasks <= 0 {
		return fmt.Errorf("--tasks must be positive, got %d", o.Tasks)
	}

	log, err := logging.New(errOut, o.LogLevel, logging.Format(o.LogFormat))
	if err != nil {
		return err
	}

	reg := prom.NewRegistry()
	exporter, err := metrics.NewExporter(reg, metrics.ExporterOptions{})
	if err != nil {
		return fmt.Errorf("error while creating metrics exporter: %w", err)
	}

	opts := []helper.Option{
		helper.WithCPUCount(o.CPUs),
		helper.WithCPUCeiling(o.CPUCeiling),
		helper.WithWorkerAffinity(o.Affinity),
		helper.WithLogger(log),
		helper.WithMetrics(exporter),
	}
	if o.DispatchRate > 0 {
		opts = append(opts, helper.WithDispatchRateLimit(o.DispatchRate, 1))
	}
	c := helper.New(opts...)

	if o.ExternalDispatch {
		// Each dispatch gets its own goroutine, standing in for a host
		// thread pool.
		c.SetDispatchCallback(func(helper.DispatchReason) {
			go c.RunOneTask()
		}, helper.ThreadCountForCPUCount(c.CPUCount()), helper.DefaultStackSize)
	}
	if err := c.EnsureInitialized(); err != nil {
		return fmt.Errorf("error while starting helper threads: %w", err)
	}
	defer func() {
		if err := c.Finish(); err != nil {
			log.Error().Err(err).Msg("finishing helper threads")
		}
	}()

	if err := reg.Register(metrics.NewCollector("", c.ID().String()[:8], c)); err != nil {
		return fmt.Errorf("error while registering stats collector: %w", err)
	}
	if o.MetricsAddr != "" {
		stopServer, err := serveMetrics(o.MetricsAddr, reg, log)
		if err != nil {
			return err
		}
		defer stopServer()
	}

	var bar progressSink = nopProgress{}
	if !o.NoProgress {
		bar = makeProgressBar(errOut, 0)
	}

	res, err := runWorkload(ctx, c, o.Tasks, bar)
	if err != nil {
		_, _ = red.Fprintf(out, "workload failed: %v\n", err)
		return err
	}

	if err := renderStats(out, c.Stats(), res.elapsed); err != nil {
		return err
	}
	if err := renderMemory(out, c.ReportMemoryUsage()); err != nil {
		return err
	}

	fmt.Fprintln(out)
	if res.failed > 0 {
		_, _ = yellow.Fprintf(out, "⚠️  %d of %d tasks reported errors\n", res.failed, res.units)
	}
	_, _ = green.Fprintf(out, "✅ Completed %d work units\n", res.units)
	return nil
}

// serveMetrics exposes reg on addr until the returned function is called.
func serveMetrics(addr string, reg *prom.Registry, log zerolog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("error while listening on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// progressSink is the part of a progress bar the workload driver uses.
type progressSink interface {
	ChangeMax(max int)
	Set(n int) error
	Finish() error
}

type nopProgress struct{}

func (nopProgress) ChangeMax(int) {}
func (nopProgress) Set(int) error { return nil }
func (nopProgress) Finish() error { return nil }
