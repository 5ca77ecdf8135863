// Package dictionary maps instrument-native field names onto canonical
// physical variables. The mapping table is embedded YAML, parsed once at
// package init and immutable afterwards, so parallel pipeline workers
// share it read-only with no locking.
//
// # Structure
//
// Each entry is keyed by (instrument family, native field name) and
// declares the canonical variable name, its canonical unit, a named
// unit-conversion function and the expected physical range. Derived
// entries (practical salinity from conductivity, temperature and
// pressure) declare their co-inputs explicitly so the normalizer can
// detect a structurally missing input instead of silently dropping the
// derived variable.
//
// # Usage
//
//	spec, err := dictionary.Resolve(domain.FamilySeaBirdCNV, "tv290C")
//	if errors.Is(err, pipelineerrors.ErrVariableNotFound) {
//	    // carry the field through unmapped, with a warning
//	}
package dictionary
