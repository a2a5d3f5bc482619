// Package project defines the canonical training-engagement entity and the
// normalizer that produces it from raw source documents. Everything after
// normalization works on these typed values; the opaque property bag never
// leaks downstream.
package project
