package postproc

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"kitchen/internal/services"
)

type recordingExecutor struct {
	binary string
	args   []string
	err    error
}

func (r *recordingExecutor) Run(_ context.Context, binary string, args []string, _, _ func(string)) error {
	r.binary = binary
	r.args = args
	return r.err
}

func TestDefaultRegistryKnowsBuiltins(t *testing.T) {
	r := NewDefaultRegistry(&recordingExecutor{}, nil)
	want := []string{"transcript", "visaid"}
	if got := r.Known(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected procedures: %v", got)
	}
}

func TestValidateAcceptsAliases(t *testing.T) {
	r := NewDefaultRegistry(&recordingExecutor{}, nil)
	if err := r.Validate([]string{"visaid", "SWT", "visaid-builder", "transcript"}); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestValidateRejectsUnknownName(t *testing.T) {
	r := NewDefaultRegistry(&recordingExecutor{}, nil)
	err := r.Validate([]string{"caption_burner"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got: %v", err)
	}
	if !services.IsBatchFatal(err) {
		t.Fatal("unknown procedure name should be batch-fatal")
	}
}

func TestDispatchRunsCommand(t *testing.T) {
	exec := &recordingExecutor{}
	r := NewDefaultRegistry(exec, nil)
	req := Request{
		AssetID:      "cpb-aacip-111",
		MMIFPath:     "/results/mmif/cpb-aacip-111_b_1.mmif",
		MediaPath:    "/media/cpb-aacip-111.mp4",
		ArtifactsDir: "/results/artifacts",
		Artifacts:    []string{"visaid"},
		Options:      map[string]any{"include_first_time": true},
	}
	if err := r.Dispatch(context.Background(), "swt", req); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if exec.binary != "visaid_builder" {
		t.Fatalf("unexpected binary: %q", exec.binary)
	}
	want := []string{
		"--mmif", req.MMIFPath,
		"--output", filepath.Join(req.ArtifactsDir, "visaid"),
		"--media", req.MediaPath,
		"--include_first_time", "true",
	}
	if !reflect.DeepEqual(exec.args, want) {
		t.Fatalf("unexpected args: %v", exec.args)
	}
}

func TestDispatchCommandOverride(t *testing.T) {
	exec := &recordingExecutor{}
	r := NewDefaultRegistry(exec, nil)
	req := Request{AssetID: "cpb-aacip-111", MMIFPath: "/m.mmif", ArtifactsDir: "/a", Command: "/opt/tools/visaid2"}
	if err := r.Dispatch(context.Background(), "visaid", req); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if exec.binary != "/opt/tools/visaid2" {
		t.Fatalf("command override ignored, got %q", exec.binary)
	}
}

func TestDispatchSurfacesProcedureFailure(t *testing.T) {
	exec := &recordingExecutor{err: errors.New("exit status 2")}
	r := NewDefaultRegistry(exec, nil)
	err := r.Dispatch(context.Background(), "visaid", Request{AssetID: "cpb-aacip-111"})
	if !errors.Is(err, services.ErrStageExecution) {
		t.Fatalf("expected stage execution error, got: %v", err)
	}
	if services.IsBatchFatal(err) {
		t.Fatal("procedure failure must stay item-scoped")
	}
}
