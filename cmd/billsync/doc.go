// Command billsync bridges a Notion project database and the
// MoneyForward billing service: it fetches completed training
// engagements, assembles per-customer invoices, and submits them
// idempotently.
package main
