package stagerun

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"kitchen/internal/fileutil"
	"kitchen/internal/logging"
	"kitchen/internal/services"
)

// QuarantineSuffix marks responses from apps that answered HTTP 500. The
// body usually carries an error-view document worth keeping for diagnosis,
// but it must never sit at a real artifact path.
const QuarantineSuffix = ".500"

// EndpointBackend posts documents to already-running CLAMS app services.
// One failed request fails the item, not the batch; an unreachable service
// surfaces once per item that needed it.
type EndpointBackend struct {
	client *http.Client
	logger *slog.Logger
}

// NewEndpointBackend builds the web service backend.
func NewEndpointBackend(logger *slog.Logger) *EndpointBackend {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &EndpointBackend{
		client: &http.Client{},
		logger: logger.With(logging.String(logging.FieldComponent, "stagerun")),
	}
}

// Invoke posts the input document to the stage endpoint with the stage
// parameters on the querystring.
func (b *EndpointBackend) Invoke(ctx context.Context, inv Invocation) error {
	input, err := os.Open(inv.InputPath)
	if err != nil {
		return services.Wrap(services.ErrArtifactState, "stagerun", "endpoint",
			fmt.Sprintf("open stage %d input", inv.StageIndex), err)
	}
	defer input.Close()

	url := inv.Stage.Endpoint + queryParams(inv.Stage.Params)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, input)
	if err != nil {
		return services.Wrap(services.ErrStageExecution, "stagerun", "endpoint", "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	logger := logging.WithContext(ctx, b.logger)
	logger.Info("posting to app service",
		logging.String("endpoint", inv.Stage.Endpoint))

	resp, err := b.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrStageExecution, "stagerun", "endpoint",
			fmt.Sprintf("app service unreachable for stage %d", inv.StageIndex), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrStageExecution, "stagerun", "endpoint",
			fmt.Sprintf("read stage %d response", inv.StageIndex), err)
	}

	if resp.StatusCode == http.StatusInternalServerError {
		quarantine := inv.OutputPath + QuarantineSuffix
		if len(body) > 0 {
			if err := fileutil.WriteAtomic(quarantine, body); err != nil {
				logger.Warn("failed to quarantine error response", logging.Error(err))
			}
		}
		return services.Wrap(services.ErrStageExecution, "stagerun", "endpoint",
			fmt.Sprintf("app returned status 500 for stage %d, response kept at %s", inv.StageIndex, quarantine), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return services.Wrap(services.ErrStageExecution, "stagerun", "endpoint",
			fmt.Sprintf("app returned status %d for stage %d", resp.StatusCode, inv.StageIndex), nil)
	}
	if len(body) == 0 {
		return services.Wrap(services.ErrStageExecution, "stagerun", "endpoint",
			fmt.Sprintf("app returned an empty document for stage %d", inv.StageIndex), nil)
	}

	if err := fileutil.WriteAtomic(inv.OutputPath, body); err != nil {
		return services.Wrap(services.ErrArtifactState, "stagerun", "endpoint",
			fmt.Sprintf("promote stage %d output", inv.StageIndex), err)
	}
	return nil
}
