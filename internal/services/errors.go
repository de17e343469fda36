package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks invalid job or manifest definitions. Fatal for
	// the whole batch, raised before any item runs.
	ErrConfiguration = errors.New("configuration error")
	// ErrMediaUnavailable marks an item whose media could not be made
	// locally available. The item fails, the batch continues.
	ErrMediaUnavailable = errors.New("media unavailable")
	// ErrStageExecution marks a failed external app invocation (process or
	// endpoint). Per item, per stage, never retried automatically.
	ErrStageExecution = errors.New("stage execution error")
	// ErrArtifactState marks unexpected on-disk artifact state, such as a
	// truncated or unparseable document left by an aborted run.
	ErrArtifactState = errors.New("artifact state error")
	// ErrTimeout marks a stage invocation that exceeded its configured
	// per-stage timeout. Counts as a stage failure, not a batch abort.
	ErrTimeout = errors.New("timeout")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrStageExecution
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsBatchFatal reports whether an error must abort the batch before any item
// runs. Only configuration and manifest-structure errors qualify; every other
// failure is isolated to its item.
func IsBatchFatal(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// FailureKind returns the short classification label recorded in run logs.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrMediaUnavailable):
		return "media"
	case errors.Is(err, ErrArtifactState):
		return "artifact"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrStageExecution):
		return "stage"
	default:
		return "error"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
