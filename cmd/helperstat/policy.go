package main

import (
	"github.com/spf13/cobra"

	"github.com/utkarsh5026/helperpool/helper"
)

func newPolicyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the thread-count policy derived for a CPU count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := loadOptions(cmd)
			if err != nil {
				return err
			}

			c := helper.New(helper.WithCPUCount(o.CPUs), helper.WithCPUCeiling(o.CPUCeiling))
			return renderPolicy(cmd.OutOrStdout(), c.Stats(), c.StackQuota())
		},
	}
}
