package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix namespaces environment overrides: --cpu-ceiling is also read
// from HELPERSTAT_CPU_CEILING.
const envPrefix = "HELPERSTAT"

type options struct {
	CPUs             int     `mapstructure:"cpus"`
	CPUCeiling       int     `mapstructure:"cpu-ceiling"`
	LogLevel         string  `mapstructure:"log-level"`
	LogFormat        string  `mapstructure:"log-format"`
	Tasks            int     `mapstructure:"tasks"`
	ExternalDispatch bool    `mapstructure:"external-dispatch"`
	DispatchRate     float64 `mapstructure:"dispatch-rate"`
	Affinity         bool    `mapstructure:"affinity"`
	MetricsAddr      string  `mapstructure:"metrics-addr"`
	NoProgress       bool    `mapstructure:"no-progress"`
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "helperstat",
		Short: "Exercise and inspect the helper-thread coordinator",
		Long: `helperstat submits a mixed workload of every helper task kind to a
coordinator, waits for it to drain and prints per-kind scheduling and
memory statistics. Every flag can also be set through the environment,
e.g. HELPERSTAT_CPUS=4.`,
		SilenceUsage: true,
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.Int("cpus", 0, "CPU count to derive the thread policy from (0 probes the machine)")
	pf.Int("cpu-ceiling", 8, "Upper bound applied to the probed CPU count (0 disables it)")
	pf.String("log-level", "warn", "Log level: debug, info, warn, error")
	pf.String("log-format", "console", "Log format: console or json")

	root.AddCommand(newRunCmd(), newPolicyCmd())
	return root
}

// loadOptions merges flags with HELPERSTAT_ environment variables. Flags
// set on the command line win.
func loadOptions(cmd *cobra.Command) (options, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return options{}, fmt.Errorf("error while binding flags: %w", err)
	}

	var o options
	if err := v.Unmarshal(&o); err != nil {
		return options{}, fmt.Errorf("error while unmarshaling options: %w", err)
	}
	if o.CPUs < 0 {
		return options{}, fmt.Errorf("--cpus must not be negative, got %d", o.CPUs)
	}
	return o, nil
}
