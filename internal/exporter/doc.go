// Package exporter serializes a validated CanonicalDataset to a
// convention-compliant file and can re-parse its own output losslessly,
// a round-trip contract the test suite holds it to.
//
// # Formats
//
//   - cf-json: the canonical target. One JSON document per dataset with
//     CF-style standard names, per-variable attributes from the export
//     mapping table, and all provenance metadata embedded.
//   - csv: a flat rendition for spreadsheet consumers. Dataset
//     attributes ride in "# key: value" comment lines ahead of the
//     header row; rows are time,variable,value,flag.
//
// # Mapping table
//
// Canonical variable names map to the external convention's standard
// name and required attribute set through a fixed, versioned table
// embedded in the package. It is distinct from the variable dictionary:
// the dictionary maps instrument fields in, this table maps canonical
// names out. A canonical variable with no entry fails the export with
// ATTRIBUTE_MAPPING_GAP rather than being silently omitted.
//
// # Fill value
//
// NaN samples serialize as the mapping table's fill value (-9999) and
// decode back to NaN on reimport, so a genuine sample of exactly -9999
// would be misread as missing. The fill value is chosen outside every
// mapping entry's valid range, which confines the collision to
// unmapped carry-through variables carrying that exact reading.
package exporter
