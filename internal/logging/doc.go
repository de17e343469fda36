// Package logging centralizes slog configuration for the batch engine:
// console and JSON handlers, attr helpers, standardized field keys, and
// context-derived fields (batch, asset, stage, run attempt).
package logging
