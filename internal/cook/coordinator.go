package cook

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kitchen/internal/config"
	"kitchen/internal/logging"
	"kitchen/internal/manifest"
	"kitchen/internal/runlog"
	"kitchen/internal/services"
)

// ItemProcessor is the per-item surface the coordinator drives.
type ItemProcessor interface {
	ProcessItem(ctx context.Context, runID string, item manifest.Item) runlog.Entry
}

// Coordinator runs a whole batch: slices the manifest, drives one
// orchestrator per effective item, and appends every attempt to the run log
// as it completes. One coordinator runs per batch at a time, enforced by a
// lock file keyed on the batch id.
type Coordinator struct {
	cfg    *config.Config
	proc   ItemProcessor
	log    *runlog.Log
	logger *slog.Logger
}

// NewCoordinator wires a batch coordinator.
func NewCoordinator(cfg *config.Config, proc ItemProcessor, log *runlog.Log, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		cfg:    cfg,
		proc:   proc,
		log:    log,
		logger: logger.With(logging.String(logging.FieldComponent, "cook")),
	}
}

// Slice reduces the manifest to the effective item set: ordinals in
// (start_after_item, end_after_item], intersected with include_only_items
// when given. A zero end bound means "through the last item".
func Slice(items []manifest.Item, job config.Job) []manifest.Item {
	var include map[int]bool
	if len(job.IncludeOnlyItems) > 0 {
		include = make(map[int]bool, len(job.IncludeOnlyItems))
		for _, ordinal := range job.IncludeOnlyItems {
			include[ordinal] = true
		}
	}

	var effective []manifest.Item
	for _, item := range items {
		if item.Ordinal <= job.StartAfterItem {
			continue
		}
		if job.EndAfterItem != 0 && item.Ordinal > job.EndAfterItem {
			continue
		}
		if include != nil && !include[item.Ordinal] {
			continue
		}
		effective = append(effective, item)
	}
	return effective
}

// Cook processes the batch and returns the summary of this run's attempts.
// Entries land in the run log incrementally, so an interrupted batch keeps
// every completed item's record.
func (c *Coordinator) Cook(ctx context.Context, items []manifest.Item) (runlog.Summary, error) {
	lock := flock.New(filepath.Join(c.cfg.Paths.LogsDir, c.cfg.ID+"_cook.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return runlog.Summary{}, services.Wrap(services.ErrConfiguration, "cook", "lock",
			"acquire batch lock", err)
	}
	if !locked {
		return runlog.Summary{}, services.Wrap(services.ErrConfiguration, "cook", "lock",
			fmt.Sprintf("batch %s is already being cooked", c.cfg.ID), nil)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	runID := uuid.NewString()
	ctx = services.WithBatchID(ctx, c.cfg.ID)
	ctx = services.WithRunID(ctx, runID)
	effective := Slice(items, c.cfg.Job)
	c.logger.Info("starting batch run",
		logging.String(logging.FieldBatchID, c.cfg.ID),
		logging.String(logging.FieldRunID, runID),
		logging.Int("items_total", len(items)),
		logging.Int("items_effective", len(effective)),
		logging.Int("concurrency", c.cfg.Job.Concurrency))

	var entries []runlog.Entry
	var appendErr error
	record := func(entry runlog.Entry) {
		if err := c.log.Append(entry); err != nil && appendErr == nil {
			appendErr = err
		}
		entries = append(entries, entry)
	}

	if c.cfg.Job.Concurrency <= 1 {
		for _, item := range effective {
			if err := ctx.Err(); err != nil {
				break
			}
			record(c.proc.ProcessItem(ctx, runID, item))
		}
	} else {
		var mu sync.Mutex
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(c.cfg.Job.Concurrency)
		for _, item := range effective {
			item := item
			group.Go(func() error {
				if err := groupCtx.Err(); err != nil {
					return nil
				}
				entry := c.proc.ProcessItem(groupCtx, runID, item)
				mu.Lock()
				record(entry)
				mu.Unlock()
				return nil
			})
		}
		_ = group.Wait()
	}

	summary := runlog.Summarize(entries)
	summary.BatchID = c.cfg.ID
	c.logger.Info("batch run finished",
		logging.String(logging.FieldBatchID, c.cfg.ID),
		logging.String(logging.FieldRunID, runID),
		logging.Int("done", summary.Done),
		logging.Int("failed", summary.Failed))
	if appendErr != nil {
		return summary, fmt.Errorf("record run log entries: %w", appendErr)
	}
	return summary, nil
}
