// Package cook orchestrates a batch run: deciding per-stage work under the
// idempotence policy, walking each item through its pipeline, and recording
// every attempt in the run log.
package cook

import (
	"fmt"

	"kitchen/internal/artifact"
	"kitchen/internal/config"
	"kitchen/internal/services"
)

// Decision is the stage gate's verdict for one chain position.
type Decision int

const (
	// Skip means the existing artifact stands and the stage is not rerun.
	Skip Decision = iota
	// Run means the stage must (re)produce its artifact.
	Run
)

func (d Decision) String() string {
	if d == Skip {
		return "skip"
	}
	return "run"
}

// Policy captures the idempotence settings that drive gating.
type Policy struct {
	Overwrite bool
	Keep      map[int]bool
}

// PolicyFromJob derives the gate policy from job configuration.
func PolicyFromJob(job config.Job) Policy {
	keep := make(map[int]bool, len(job.KeepMMIFs))
	for _, stage := range job.KeepMMIFs {
		keep[stage] = true
	}
	return Policy{Overwrite: job.OverwriteMMIF, Keep: keep}
}

// Decide returns the gate verdict for a stage given the on-disk artifact
// state. It is a pure function of its inputs.
//
// A current artifact is kept when overwriting is off, and also when the
// stage is pinned by keep_mmifs. A stale artifact counts as absent and
// triggers a fresh run, except when the stage is pinned: a pinned stage
// whose artifact cannot be trusted is unrecoverable for the item.
func Decide(state artifact.State, stageIndex int, policy Policy) (Decision, error) {
	switch state {
	case artifact.StateCurrent:
		if !policy.Overwrite {
			return Skip, nil
		}
		if policy.Keep[stageIndex] {
			return Skip, nil
		}
		return Run, nil
	case artifact.StateAbsent:
		return Run, nil
	case artifact.StateStale:
		if policy.Keep[stageIndex] {
			return Skip, services.Wrap(services.ErrArtifactState, "cook", "gate",
				fmt.Sprintf("stage %d artifact is unusable but pinned by keep_mmifs", stageIndex), nil)
		}
		return Run, nil
	default:
		return Skip, services.Wrap(services.ErrArtifactState, "cook", "gate",
			fmt.Sprintf("unknown artifact state %v at stage %d", state, stageIndex), nil)
	}
}
