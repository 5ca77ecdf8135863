// Package normalizer turns a reader's RawRecord into a CanonicalDataset:
// every native field is resolved through the variable dictionary, unit
// conversions are applied, and derived variables (practical salinity
// from conductivity, temperature and pressure) are evaluated once per
// row after their co-inputs are available.
//
// Range violations are informational, not fatal: instrument
// mis-calibration is common, so out-of-range inputs produce samples
// flagged out-of-range and downstream users decide disposition. Fields
// with no dictionary entry carry through under an "unmapped:<name>"
// identity and are reported in the returned warning list. The only hard
// failure is IncompleteDerivation, raised when a derived variable's
// required co-input is absent from every row of the record.
package normalizer
