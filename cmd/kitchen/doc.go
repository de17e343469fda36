// Package main hosts the kitchen CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into batch
// runs, media-only acquisition passes, run-log inspection, and configuration
// scaffolding. It centralizes job configuration resolution and structured
// logging setup so subcommands can focus on user experience instead of
// wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
