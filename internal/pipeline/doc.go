// Package pipeline orchestrates the full sync: fetch project records,
// normalize and price them, assemble per-customer invoices, and submit
// them with idempotency. Record-local failures are reported per
// project; only auth and source-availability failures abort a run.
package pipeline
