// Package main hosts the crossvoice CLI entrypoint and command graph.
//
// The Cobra-based command tree plans and runs AutoVC cross-speaker
// conversion experiments, runs ad-hoc conversions and embeddings, reports
// ledger state and preflight checks, and scaffolds configuration. It
// centralizes configuration resolution, logger setup and model loading so
// subcommands only decide what to print.
//
// Keep this package lean: behavior belongs in the internal packages, and
// commands here wire them together and render their results.
package main
