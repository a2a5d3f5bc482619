// Package invoice holds the billing document model and the two pure
// transforms that produce it: the calculator deriving money fields from a
// project and the mapper assembling per-customer invoices with deterministic
// correlation keys.
package invoice
