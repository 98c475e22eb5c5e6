// Package experiment pairs test samples into conversion jobs and runs them
// in order, recording progress in the ledger.
//
// Plan is pure: it only looks at the metadata table and the sample list, so
// the plan command can print the job list without loading any model. Runner
// takes the experiment lock, records the run, and drives a Converter job by
// job.
package experiment
