package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"kitchen/internal/command"
	"kitchen/internal/config"
	"kitchen/internal/cook"
	"kitchen/internal/logging"
	"kitchen/internal/manifest"
	"kitchen/internal/media"
	"kitchen/internal/postproc"
	"kitchen/internal/runlog"
	"kitchen/internal/stagerun"
)

func newCookCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cook [job.toml]",
		Short: "Run the batch described by the job configuration",
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
			summary, err := runBatch(cmd, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary.String())
			return nil
		},
	}
}

// runBatch wires the full engine for one cook invocation and runs it.
func runBatch(cmd *cobra.Command, cfg *config.Config) (runlog.Summary, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return runlog.Summary{}, fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := logging.NewBatchLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Paths.LogsDir, cfg.ID)
	if err != nil {
		return runlog.Summary{}, fmt.Errorf("initialize logging: %w", err)
	}

	items, err := manifest.Resolve(cfg.Paths.Manifest)
	if err != nil {
		return runlog.Summary{}, err
	}

	registry := postproc.NewDefaultRegistry(command.New(), logger)
	names := make([]string, 0, len(cfg.PostProcs))
	for _, proc := range cfg.PostProcs {
		names = append(names, proc.Name)
	}
	if err := registry.Validate(names); err != nil {
		return runlog.Summary{}, err
	}

	coordinator := buildCoordinator(cfg, registry, logger)
	summary, err := coordinator.Cook(cmd.Context(), items)
	if err != nil {
		return summary, err
	}

	log := runlog.Open(cfg.Paths.LogsDir, cfg.ID)
	if err := syncStore(cmd, cfg, log); err != nil {
		logger.Warn("run database sync failed", logging.Error(err))
	}
	return summary, nil
}

func buildCoordinator(cfg *config.Config, registry *postproc.Registry, logger *slog.Logger) *cook.Coordinator {
	exec := command.New()
	resolver := media.NewCiURLResolver(cfg.Media.CiURLCommand, exec)
	provider := media.NewManager(cfg.Paths.MediaDir, resolver, cfg.Media.DownloadLimitMiB, logger)
	runner := stagerun.NewRunner(
		stagerun.NewProcessBackend(cfg, exec, logger),
		stagerun.NewEndpointBackend(logger),
		cfg.StageTimeout(),
	)
	orchestrator := cook.NewOrchestrator(cfg, provider, runner, registry, logger)
	log := runlog.Open(cfg.Paths.LogsDir, cfg.ID)
	return cook.NewCoordinator(cfg, orchestrator, log, logger)
}

// syncStore replays the ledger into the batch's run database so the runlog
// subcommands have something to query.
func syncStore(cmd *cobra.Command, cfg *config.Config, log *runlog.Log) error {
	entries, err := log.Entries()
	if err != nil {
		return err
	}
	store, err := runlog.OpenStore(cfg.Paths.LogsDir, cfg.ID)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Sync(cmd.Context(), entries)
}
