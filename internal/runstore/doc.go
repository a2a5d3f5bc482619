// Package runstore persists pipeline run history and the submission
// ledger that keeps invoice submission idempotent across runs.
package runstore
