package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMediaCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "media [job.toml]",
		Short: "Acquire media for every item without running the pipeline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			}
			cfg, err := ctx.ensureConfig(path)
			if err != nil {
				return err
			}
			cfg.Job.JustGetMedia = true
			cfg.Stages = nil
			cfg.PostProcs = nil

			summary, err := runBatch(cmd, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary.String())
			return nil
		},
	}
}
