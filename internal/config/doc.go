// Package config loads, normalizes, and validates TOML job configuration for
// a batch run: batch identity, directory layout, the ordered pipeline stage
// list, post-processing procedures, and the slicing/idempotence/cleanup
// policies the orchestration engine consumes.
package config
