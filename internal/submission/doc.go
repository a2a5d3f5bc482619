// Package submission drives invoices through the billing service with
// correlation-key idempotency and bounded, jittered retry on transient
// failures.
package submission
