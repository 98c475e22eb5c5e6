// Package preflight provides readiness checks for the files, directories and
// binaries an experiment run depends on.
//
// These checks run in two contexts:
//   - The run command calls RunAll before loading models. If any check fails
//     the run stops before the Python bridge spends minutes loading torch.
//   - The CLI "crossvoice check" command prints every result as a table.
package preflight
