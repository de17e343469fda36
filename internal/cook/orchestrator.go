package cook

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"kitchen/internal/artifact"
	"kitchen/internal/config"
	"kitchen/internal/logging"
	"kitchen/internal/manifest"
	"kitchen/internal/media"
	"kitchen/internal/mmif"
	"kitchen/internal/postproc"
	"kitchen/internal/runlog"
	"kitchen/internal/services"
	"kitchen/internal/stagerun"
)

// MediaProvider is the acquisition surface the orchestrator depends on.
type MediaProvider interface {
	EnsureLocal(ctx context.Context, item manifest.Item) (string, error)
}

// StageRunner executes one stage invocation.
type StageRunner interface {
	Run(ctx context.Context, inv stagerun.Invocation) error
}

// Orchestrator walks one item through its lifecycle: media check, blank
// document, the pipeline stages in order, post-processing, and cleanup. A
// failure at any point absorbs the item into a failed terminal state; the
// returned entry is complete either way.
type Orchestrator struct {
	cfg      *config.Config
	media    MediaProvider
	runner   StageRunner
	registry *postproc.Registry
	policy   Policy
	logger   *slog.Logger
}

// NewOrchestrator wires an item orchestrator.
func NewOrchestrator(cfg *config.Config, provider MediaProvider, runner StageRunner,
	registry *postproc.Registry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		media:    provider,
		runner:   runner,
		registry: registry,
		policy:   PolicyFromJob(cfg.Job),
		logger:   logger.With(logging.String(logging.FieldComponent, "cook")),
	}
}

// ProcessItem runs the full lifecycle for one item and returns its run log
// entry. The entry is always complete: failed items get a record too.
func (o *Orchestrator) ProcessItem(ctx context.Context, runID string, item manifest.Item) runlog.Entry {
	entry := runlog.Entry{
		RunID:     runID,
		BatchID:   o.cfg.ID,
		AssetID:   item.AssetID,
		Ordinal:   item.Ordinal,
		Status:    runlog.StatusDone,
		StartedAt: time.Now().UTC(),
	}
	ctx = services.WithAssetID(ctx, item.AssetID)
	logger := logging.WithContext(ctx, o.logger).With(
		logging.Int(logging.FieldItemNum, item.Ordinal))

	mediaPath := o.checkMedia(ctx, item, &entry, logger)
	if mediaPath != "" {
		entry.MediaFilename = filepath.Base(mediaPath)
	}
	if entry.Status == runlog.StatusFailed || o.cfg.Job.JustGetMedia {
		o.cleanup(item, mediaPath, &entry, logger)
		entry.FinishedAt = time.Now().UTC()
		return entry
	}

	chain := artifact.NewChain(o.cfg.ID, item.AssetID, o.cfg.Paths.MMIFDir, len(o.cfg.Stages))
	if o.runStages(ctx, item, chain, mediaPath, &entry, logger) {
		o.runPostProcs(ctx, item, chain, mediaPath, &entry, logger)
	}

	o.cleanup(item, mediaPath, &entry, logger)
	entry.FinishedAt = time.Now().UTC()
	return entry
}

// checkMedia resolves the item's media when the job needs it. On failure it
// marks the entry failed and returns an empty path.
func (o *Orchestrator) checkMedia(ctx context.Context, item manifest.Item,
	entry *runlog.Entry, logger *slog.Logger) string {
	if !o.cfg.Job.MediaRequired {
		return ""
	}
	if timeout := o.cfg.MediaTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	mediaPath, err := o.media.EnsureLocal(ctx, item)
	if err != nil {
		logger.Error("media unavailable", logging.Error(err))
		entry.Status = runlog.StatusFailed
		entry.Error = err.Error()
		entry.FailureKind = services.FailureKind(err)
		return ""
	}
	logger.Info("media available", logging.String("path", mediaPath))
	return mediaPath
}

// runStages walks the chain from the blank document through the last stage.
// It reports whether every stage position ended up current.
func (o *Orchestrator) runStages(ctx context.Context, item manifest.Item,
	chain artifact.Chain, mediaPath string, entry *runlog.Entry, logger *slog.Logger) bool {
	for stageIndex := 0; stageIndex <= chain.Stages; stageIndex++ {
		state, status := chain.StateAt(stageIndex)
		decision, err := Decide(state, stageIndex, o.policy)
		if err != nil {
			o.failStage(entry, stageIndex, err, logger)
			return false
		}
		if decision == Skip {
			logger.Info("stage skipped, artifact exists",
				logging.Int(logging.FieldStage, stageIndex))
			entry.Stages = append(entry.Stages, runlog.StageOutcome{
				Stage: stageIndex, Result: runlog.ResultSkipped})
			continue
		}
		if state == artifact.StateStale {
			logger.Warn("existing artifact is unusable, redoing stage",
				logging.Int(logging.FieldStage, stageIndex),
				logging.String("mmif_status", status.String()))
		}

		var stageErr error
		if stageIndex == 0 {
			stageErr = o.makeBlank(item, chain, mediaPath, logger)
		} else {
			stageErr = o.runStage(ctx, item, chain, stageIndex)
		}
		if stageErr != nil {
			o.failStage(entry, stageIndex, stageErr, logger)
			return false
		}
		entry.Stages = append(entry.Stages, runlog.StageOutcome{
			Stage: stageIndex, Result: runlog.ResultRan})
	}
	return true
}

func (o *Orchestrator) failStage(entry *runlog.Entry, stageIndex int, err error, logger *slog.Logger) {
	logger.Error("stage failed",
		logging.Int(logging.FieldStage, stageIndex),
		logging.Error(err))
	entry.Stages = append(entry.Stages, runlog.StageOutcome{
		Stage: stageIndex, Result: runlog.ResultFailed, Detail: err.Error()})
	entry.Status = runlog.StatusFailed
	entry.Error = err.Error()
	entry.FailureKind = services.FailureKind(err)
}

// makeBlank fabricates the stage 0 document. Items without local media fall
// back to the manifest filename so the document still names its source.
func (o *Orchestrator) makeBlank(item manifest.Item, chain artifact.Chain,
	mediaPath string, logger *slog.Logger) error {
	filename := item.MediaFilename
	if mediaPath != "" {
		filename = filepath.Base(mediaPath)
	}
	if filename == "" {
		filename = item.AssetID
	}

	mime := "video"
	switch item.MediaType {
	case manifest.MediaTypeMovingImage:
	case manifest.MediaTypeSound:
		mime = "audio"
	default:
		logger.Warn("unrecognized media type, assuming video",
			logging.String("media_type", item.MediaType))
	}

	blank, err := mmif.NewBlank(filename, mime)
	if err != nil {
		return services.Wrap(services.ErrArtifactState, "cook", "blank_doc",
			"fabricate blank document", err)
	}
	if err := chain.Write(0, blank); err != nil {
		return services.Wrap(services.ErrArtifactState, "cook", "blank_doc",
			"write blank document", err)
	}
	return nil
}

// runStage invokes stage k over the stage k-1 artifact. The previous chain
// position must be current before the stage may run.
func (o *Orchestrator) runStage(ctx context.Context, item manifest.Item,
	chain artifact.Chain, stageIndex int) error {
	inputState, inputStatus := chain.StateAt(stageIndex - 1)
	if inputState != artifact.StateCurrent {
		return services.Wrap(services.ErrArtifactState, "cook", "stage",
			fmt.Sprintf("stage %d input is %s", stageIndex, inputStatus), nil)
	}
	ctx = services.WithStage(ctx, strconv.Itoa(stageIndex))
	return o.runner.Run(ctx, stagerun.Invocation{
		Stage:      o.cfg.Stages[stageIndex-1],
		StageIndex: stageIndex,
		AssetID:    item.AssetID,
		InputPath:  chain.Path(stageIndex - 1),
		OutputPath: chain.Path(stageIndex),
		InputName:  chain.Filename(stageIndex - 1),
		OutputName: chain.Filename(stageIndex),
	})
}

// runPostProcs dispatches each configured procedure over the final
// document. Procedure failures are recorded but never fail the item.
func (o *Orchestrator) runPostProcs(ctx context.Context, item manifest.Item,
	chain artifact.Chain, mediaPath string, entry *runlog.Entry, logger *slog.Logger) {
	if len(o.cfg.PostProcs) == 0 {
		return
	}
	if state, status := chain.StateAt(chain.Stages); state != artifact.StateCurrent {
		logger.Warn("skipping post-processing, final document not usable",
			logging.String("mmif_status", status.String()))
		entry.PostProcErrors = append(entry.PostProcErrors,
			fmt.Sprintf("final document is %s", status))
		return
	}
	for _, proc := range o.cfg.PostProcs {
		err := o.registry.Dispatch(ctx, proc.Name, postproc.Request{
			AssetID:      item.AssetID,
			MMIFPath:     chain.Final(),
			MediaPath:    mediaPath,
			ArtifactsDir: o.cfg.Paths.ArtifactsDir,
			Artifacts:    proc.Artifacts,
			Command:      proc.Command,
			Options:      proc.Options,
		})
		if err != nil {
			logger.Warn("post-processing procedure failed, proceeding",
				logging.String("procedure", proc.Name),
				logging.Error(err))
			entry.PostProcErrors = append(entry.PostProcErrors,
				fmt.Sprintf("%s: %v", proc.Name, err))
		}
	}
}

// cleanup removes the item's media per the cleanup policy and records the
// outcome. Failed items are eligible too.
func (o *Orchestrator) cleanup(item manifest.Item, mediaPath string,
	entry *runlog.Entry, logger *slog.Logger) {
	if mediaPath == "" {
		return
	}
	if !o.cfg.Job.CleanupMediaPerItem || item.Ordinal <= o.cfg.Job.CleanupBeyondItem {
		entry.Cleanup = "kept"
		return
	}
	if err := media.Remove(mediaPath); err != nil {
		logger.Warn("media cleanup failed", logging.Error(err))
		entry.Cleanup = "failed"
		return
	}
	logger.Info("media removed", logging.String("path", mediaPath))
	entry.Cleanup = "removed"
}
