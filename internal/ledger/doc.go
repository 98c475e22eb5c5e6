// Package ledger records experiment runs and conversion jobs in SQLite.
//
// Each run gets a UUID and one row per planned job. Jobs move from pending
// through running to completed, failed or skipped; a later run against the
// same experiment tree consults completed keys to resume. Schema changes bump
// schemaVersion; users delete the database to adopt a new schema.
package ledger
