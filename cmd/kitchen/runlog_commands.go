package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kitchen/internal/config"
	"kitchen/internal/runlog"
)

func newRunlogCommand(ctx *commandContext) *cobra.Command {
	runlogCmd := &cobra.Command{
		Use:   "runlog",
		Short: "Inspect the batch run log",
	}
	runlogCmd.AddCommand(newRunlogShowCommand(ctx))
	runlogCmd.AddCommand(newRunlogSummaryCommand(ctx))
	runlogCmd.AddCommand(newRunlogFailedCommand(ctx))
	return runlogCmd
}

func openLedger(ctx *commandContext) (*config.Config, []runlog.Entry, error) {
	cfg, err := ctx.ensureConfig("")
	if err != nil {
		return nil, nil, err
	}
	entries, err := runlog.Open(cfg.Paths.LogsDir, cfg.ID).Entries()
	if err != nil {
		return nil, nil, err
	}
	return cfg, entries, nil
}

func newRunlogShowCommand(ctx *commandContext) *cobra.Command {
	var asCSV bool
	var latestOnly bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List logged item attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, entries, err := openLedger(ctx)
			if err != nil {
				return err
			}
			if latestOnly {
				if entries, err = runlog.Open(cfg.Paths.LogsDir, cfg.ID).Latest(); err != nil {
					return err
				}
			}
			if len(entries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No run log entries for batch %s.\n", cfg.ID)
				return nil
			}
			rows := runlog.Rows(entries)
			out := cmd.OutOrStdout()
			if asCSV {
				fmt.Fprintln(out, renderCSV(runlog.Header(), rows))
				return nil
			}
			fmt.Fprintln(out, renderTable(runlog.Header(), rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asCSV, "csv", false, "Emit CSV instead of a table")
	cmd.Flags().BoolVar(&latestOnly, "latest", false, "Show only each asset's latest attempt")
	return cmd
}

func newRunlogSummaryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Summarize all runs of the batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, entries, err := openLedger(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No run log entries for batch %s.\n", cfg.ID)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), runlog.Summarize(entries).String())
			return nil
		},
	}
}

func newRunlogFailedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "failed",
		Short: "List assets whose latest attempt failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, entries, err := openLedger(ctx)
			if err != nil {
				return err
			}
			store, err := runlog.OpenStore(cfg.Paths.LogsDir, cfg.ID)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Sync(cmd.Context(), entries); err != nil {
				return err
			}
			assets, err := store.FailedAssets(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(assets) == 0 {
				fmt.Fprintf(out, "No failed items in batch %s.\n", cfg.ID)
				return nil
			}
			fmt.Fprintln(out, strings.Join(assets, "\n"))
			return nil
		},
	}
}
