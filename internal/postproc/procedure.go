package postproc

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"kitchen/internal/command"
	"kitchen/internal/logging"
	"kitchen/internal/services"
)

// CommandProcedure runs a post-processing tool as an external command. The
// tool receives the document, output directory, and optional media path as
// flags, followed by the configured options.
type CommandProcedure struct {
	name   string
	binary string
	exec   command.Executor
	logger *slog.Logger
}

// NewCommandProcedure builds a procedure around a tool binary. The request
// may override the binary per batch.
func NewCommandProcedure(name, binary string, exec command.Executor, logger *slog.Logger) *CommandProcedure {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CommandProcedure{
		name:   name,
		binary: binary,
		exec:   exec,
		logger: logger.With(logging.String(logging.FieldComponent, "postproc")),
	}
}

// Name implements Procedure.
func (p *CommandProcedure) Name() string { return p.name }

// Run implements Procedure.
func (p *CommandProcedure) Run(ctx context.Context, req Request) error {
	binary := p.binary
	if req.Command != "" {
		binary = req.Command
	}
	args := []string{"--mmif", req.MMIFPath}

	outDir := req.ArtifactsDir
	if len(req.Artifacts) > 0 {
		outDir = filepath.Join(req.ArtifactsDir, req.Artifacts[0])
	}
	args = append(args, "--output", outDir)
	if req.MediaPath != "" {
		args = append(args, "--media", req.MediaPath)
	}
	args = append(args, optionArgs(req.Options)...)

	forward := func(line string) {
		logging.WithContext(ctx, p.logger).Debug(line,
			logging.String("procedure", p.name))
	}
	if err := p.exec.Run(ctx, binary, args, forward, forward); err != nil {
		return services.Wrap(services.ErrStageExecution, "postproc", p.name,
			fmt.Sprintf("procedure failed for %s", req.AssetID), err)
	}
	return nil
}

func optionArgs(options map[string]any) []string {
	if len(options) == 0 {
		return nil
	}
	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var args []string
	for _, key := range keys {
		args = append(args, "--"+key, fmt.Sprintf("%v", options[key]))
	}
	return args
}
