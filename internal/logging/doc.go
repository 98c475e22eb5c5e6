// Package logging assembles structured slog loggers and formatting helpers used
// across crossvoice.
//
// It owns the console and JSON handlers, level parsing, output plumbing, the
// per-run JSON log file and its retention, and context helpers that tag log
// lines with run IDs and job keys. The package also provides a no-op logger
// for tests and wiring code that cannot fail.
package logging
