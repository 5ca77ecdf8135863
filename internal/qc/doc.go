// Package qc is the temporal quality-control engine. It operates in
// place on a CanonicalDataset, independently per variable series:
// duplicate and out-of-order timestamps are resolved first-seen-wins,
// sampling gaps are detected against the modal interval and recorded as
// metadata spans (optionally filled by linear interpolation, flagged),
// and a linear clock-drift correction is applied when deployment
// reference timestamps are supplied. The engine never re-derives raw
// values and never guesses a correction it cannot justify.
//
// Validate is idempotent: running it twice changes nothing. A timestamp
// regression that survives dedup and drift correction is a hard stop
// (NON_MONOTONIC_AFTER_CORRECTION) because a non-monotonic canonical
// series must not be exported.
package qc
