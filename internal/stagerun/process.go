package stagerun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"kitchen/internal/command"
	"kitchen/internal/config"
	"kitchen/internal/fileutil"
	"kitchen/internal/logging"
	"kitchen/internal/mmif"
	"kitchen/internal/services"
)

// ContainerMMIFDir is where stage containers see the document directory.
const ContainerMMIFDir = "/mmif"

const inProgressSuffix = ".inprog"

// ProcessBackend runs dockerized CLAMS apps in CLI mode. The media and
// document directories are bind-mounted into the container, so only file
// names cross the boundary.
type ProcessBackend struct {
	dockerBinary string
	entrypoint   []string
	mediaMount   string
	mmifMount    string
	mmifDir      string
	exec         command.Executor
	logger       *slog.Logger
}

// NewProcessBackend builds the docker CLI backend. mediaMount and mmifMount
// are the docker-visible forms of the media and document directories;
// mmifDir is the engine-visible document directory.
func NewProcessBackend(cfg *config.Config, exec command.Executor, logger *slog.Logger) *ProcessBackend {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ProcessBackend{
		dockerBinary: cfg.Runtime.DockerBinary,
		entrypoint:   cfg.Runtime.Entrypoint,
		mediaMount:   cfg.MountPath(cfg.Paths.MediaDir),
		mmifMount:    cfg.MountPath(cfg.Paths.MMIFDir),
		mmifDir:      cfg.Paths.MMIFDir,
		exec:         exec,
		logger:       logger.With(logging.String(logging.FieldComponent, "stagerun")),
	}
}

// Invoke runs the app container. The container writes to a working name
// under the document mount; the output is promoted to its final path only
// after the run finishes.
func (b *ProcessBackend) Invoke(ctx context.Context, inv Invocation) error {
	workingName := inv.OutputName + inProgressSuffix
	workingPath := filepath.Join(b.mmifDir, workingName)
	defer func() {
		_ = os.Remove(workingPath)
	}()

	args := []string{
		"run",
		"-v", b.mediaMount + "/:" + mmif.ContainerMediaDir,
		"-v", b.mmifMount + "/:" + ContainerMMIFDir,
		"-i",
		"--rm",
	}
	if inv.Stage.GPUs != "" {
		args = append(args, "--gpus", inv.Stage.GPUs)
	}
	args = append(args, inv.Stage.Image)
	args = append(args, b.entrypoint...)
	args = append(args, cliParams(inv.Stage.Params)...)
	args = append(args,
		ContainerMMIFDir+"/"+inv.InputName,
		ContainerMMIFDir+"/"+workingName)

	logger := logging.WithContext(ctx, b.logger).With(
		logging.String("image", inv.Stage.Image))
	logger.Info("running dockerized app")

	forward := func(line string) {
		logger.Debug(line)
	}
	if err := b.exec.Run(ctx, b.dockerBinary, args, forward, forward); err != nil {
		return services.Wrap(services.ErrStageExecution, "stagerun", "process",
			fmt.Sprintf("docker run for stage %d", inv.StageIndex), err)
	}

	if _, err := os.Stat(workingPath); err != nil {
		return services.Wrap(services.ErrStageExecution, "stagerun", "process",
			fmt.Sprintf("stage %d produced no output", inv.StageIndex), err)
	}
	if err := fileutil.Promote(workingPath, inv.OutputPath); err != nil {
		return services.Wrap(services.ErrArtifactState, "stagerun", "process",
			fmt.Sprintf("promote stage %d output", inv.StageIndex), err)
	}
	return nil
}
