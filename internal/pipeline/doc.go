// Package pipeline wires the per-file Reader → Normalizer → QC →
// Exporter chain and the parallel batch loop over a directory. Each
// file's pipeline instance is independent: a failure aborts only that
// file, and the batch continues with the remaining files. Workers share
// nothing mutable; the variable dictionary and export mapping table are
// read-only after process start.
package pipeline
