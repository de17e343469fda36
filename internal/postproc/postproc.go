// Package postproc turns a finished annotation document into the deliverable
// artifacts a batch was cooked for. Procedures are looked up by name from a
// fixed registry; each one shells out to its tool over the final document.
// Procedure failures are recorded against the item but never fail it: the
// annotations already exist and remain usable.
package postproc

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"kitchen/internal/command"
	"kitchen/internal/logging"
	"kitchen/internal/services"
)

// Request carries the inputs one procedure run needs. Command, when set,
// overrides the procedure's default tool binary for this batch.
type Request struct {
	AssetID      string
	MMIFPath     string
	MediaPath    string
	ArtifactsDir string
	Artifacts    []string
	Command      string
	Options      map[string]any
}

// Procedure is one named post-processing tool.
type Procedure interface {
	Name() string
	Run(ctx context.Context, req Request) error
}

// Registry resolves configured procedure names, including their historical
// aliases, to procedures.
type Registry struct {
	procs   map[string]Procedure
	aliases map[string]string
	logger  *slog.Logger
}

// NewRegistry builds a registry over the given procedures.
func NewRegistry(logger *slog.Logger, procs ...Procedure) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Registry{
		procs:   make(map[string]Procedure, len(procs)),
		aliases: make(map[string]string),
		logger:  logger.With(logging.String(logging.FieldComponent, "postproc")),
	}
	for _, proc := range procs {
		r.procs[proc.Name()] = proc
	}
	return r
}

// Alias registers an alternate configured name for a procedure.
func (r *Registry) Alias(alias, name string) {
	r.aliases[strings.ToLower(alias)] = name
}

// Validate rejects configured procedure names that resolve to nothing. This
// runs at configuration load so a typo surfaces before any item executes.
func (r *Registry) Validate(names []string) error {
	for _, name := range names {
		if _, err := r.lookup(name); err != nil {
			return err
		}
	}
	return nil
}

// Dispatch runs the named procedure over the request.
func (r *Registry) Dispatch(ctx context.Context, name string, req Request) error {
	proc, err := r.lookup(name)
	if err != nil {
		return err
	}
	r.logger.Info("running post-processing procedure",
		logging.String(logging.FieldAssetID, req.AssetID),
		logging.String("procedure", proc.Name()))
	return proc.Run(ctx, req)
}

// Known returns the registered procedure names, sorted.
func (r *Registry) Known() []string {
	names := make([]string, 0, len(r.procs))
	for name := range r.procs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (Procedure, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := r.aliases[key]; ok {
		key = canonical
	}
	proc, ok := r.procs[key]
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "postproc", "lookup",
			fmt.Sprintf("unknown post-processing procedure %q (known: %s)",
				name, strings.Join(r.Known(), ", ")), nil)
	}
	return proc, nil
}

// NewDefaultRegistry wires the built-in procedures with their aliases.
func NewDefaultRegistry(exec command.Executor, logger *slog.Logger) *Registry {
	r := NewRegistry(logger,
		NewCommandProcedure("visaid", "visaid_builder", exec, logger),
		NewCommandProcedure("transcript", "transcript_exporter", exec, logger),
	)
	for _, alias := range []string{"swt", "visaid_builder", "visaid-builder"} {
		r.Alias(alias, "visaid")
	}
	return r
}
