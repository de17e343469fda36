// Package artifact models the per-item chain of intermediate annotation
// documents: one blank document at stage 0 plus one output per pipeline
// stage. An artifact is identified purely by (batch, asset, stage index);
// the file's presence and soundness at that path is the only correctness
// signal the engine consults.
package artifact

import (
	"fmt"
	"path/filepath"

	"kitchen/internal/fileutil"
	"kitchen/internal/mmif"
)

// State classifies the on-disk condition of one chain position.
type State int

const (
	// StateAbsent means no file exists at the artifact path.
	StateAbsent State = iota
	// StateCurrent means the file exists and is a sound stage output.
	StateCurrent
	// StateStale means a file exists but cannot be trusted as a stage
	// output (unparseable, viewless beyond stage 0, or carrying error
	// views). Stale artifacts are treated as absent by gating.
	StateStale
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateCurrent:
		return "current"
	case StateStale:
		return "stale"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Chain locates every artifact of one item. Stages is the pipeline stage
// count; valid stage indexes run 0 (blank document) through Stages.
type Chain struct {
	BatchID string
	AssetID string
	Dir     string
	Stages  int
}

// NewChain builds the artifact chain for one item.
func NewChain(batchID, assetID, dir string, stages int) Chain {
	return Chain{BatchID: batchID, AssetID: assetID, Dir: dir, Stages: stages}
}

// Filename returns the artifact file name at the given stage index. Stage 0
// names omit the batch id so blank documents are shared across batches over
// the same asset.
func (c Chain) Filename(stage int) string {
	if stage == 0 {
		return c.AssetID + "_0.mmif"
	}
	return fmt.Sprintf("%s_%s_%d.mmif", c.AssetID, c.BatchID, stage)
}

// Path returns the absolute artifact path at the given stage index.
func (c Chain) Path(stage int) string {
	return filepath.Join(c.Dir, c.Filename(stage))
}

// Final returns the path of the last pipeline stage's output.
func (c Chain) Final() string {
	return c.Path(c.Stages)
}

// StateAt inspects the artifact at the given stage index and classifies it.
// The MMIF status is returned alongside for diagnostics.
func (c Chain) StateAt(stage int) (State, mmif.Status) {
	status := mmif.Check(c.Path(stage))
	switch {
	case !status.Exists:
		return StateAbsent, status
	case !status.Valid || status.ErrorViews:
		return StateStale, status
	case stage > 0 && status.Blank:
		return StateStale, status
	default:
		return StateCurrent, status
	}
}

// Write promotes serialized artifact content into its chain position
// atomically.
func (c Chain) Write(stage int, data []byte) error {
	return fileutil.WriteAtomic(c.Path(stage), data)
}
