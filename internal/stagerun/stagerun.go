// Package stagerun invokes one pipeline stage over one item: feeding the
// previous artifact to a CLAMS app and promoting the app's output into the
// next chain position. Two backends exist, one shelling out to docker run
// and one posting to an already-running web service.
package stagerun

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kitchen/internal/config"
	"kitchen/internal/mmif"
	"kitchen/internal/services"
)

// Invocation carries everything one stage execution needs. InputName and
// OutputName are bare file names; the backends decide how the app sees them.
type Invocation struct {
	Stage      config.Stage
	StageIndex int
	AssetID    string
	InputPath  string
	OutputPath string
	InputName  string
	OutputName string
}

// Backend executes a stage invocation, leaving the produced document at
// OutputPath on success.
type Backend interface {
	Invoke(ctx context.Context, inv Invocation) error
}

// Runner selects the backend for a stage, applies the per-stage timeout,
// serializes GPU work, and validates the produced document.
type Runner struct {
	process  Backend
	endpoint Backend
	timeout  time.Duration
	gpuGate  sync.Mutex
}

// NewRunner wires both backends. timeout of zero disables the per-stage
// deadline.
func NewRunner(process, endpoint Backend, timeout time.Duration) *Runner {
	return &Runner{process: process, endpoint: endpoint, timeout: timeout}
}

// Run executes the invocation and verifies its output carries views and no
// error views. GPU stages run one at a time across the whole batch.
func (r *Runner) Run(ctx context.Context, inv Invocation) error {
	backend, err := r.selectBackend(inv.Stage)
	if err != nil {
		return err
	}

	if inv.Stage.GPUs != "" {
		r.gpuGate.Lock()
		defer r.gpuGate.Unlock()
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := backend.Invoke(ctx, inv); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "stagerun", "run",
				fmt.Sprintf("stage %d timed out after %s", inv.StageIndex, r.timeout), err)
		}
		return err
	}

	status := mmif.Check(inv.OutputPath)
	if !status.Laden() || status.ErrorViews {
		return services.Wrap(services.ErrStageExecution, "stagerun", "run",
			fmt.Sprintf("stage %d output is %s", inv.StageIndex, status), nil)
	}
	return nil
}

func (r *Runner) selectBackend(stage config.Stage) (Backend, error) {
	switch stage.Kind {
	case config.StageProcess:
		if r.process == nil {
			return nil, services.Wrap(services.ErrConfiguration, "stagerun", "select",
				"no process backend configured", nil)
		}
		return r.process, nil
	case config.StageEndpoint:
		if r.endpoint == nil {
			return nil, services.Wrap(services.ErrConfiguration, "stagerun", "select",
				"no endpoint backend configured", nil)
		}
		return r.endpoint, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "stagerun", "select",
			fmt.Sprintf("unknown stage kind %q", stage.Kind), nil)
	}
}
