// Package services defines shared utilities consumed by the batch
// orchestration engine and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp batch IDs, asset IDs, stage labels, and run
//     attempt identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the batch error taxonomy (configuration vs media vs stage vs
//     artifact state).
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability) stays uniform across the pipeline.
package services
