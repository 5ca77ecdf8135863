package dictionary

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v2"

	"ctdkit/internal/errors"
	"ctdkit/pkg/contracts/domain"
)

//go:embed dictionary.yaml
var dictionaryYAML []byte

// Spec is one immutable dictionary entry: how a native instrument field
// becomes a canonical variable.
type Spec struct {
	Family    domain.InstrumentFamily
	Native    string
	Canonical string
	Unit      string
	Converter string
	ValidMin  float64
	ValidMax  float64
	HasRange  bool

	convert ConvertFunc
}

// Convert applies the entry's unit conversion to a native value.
func (s Spec) Convert(v float64) float64 {
	return s.convert(v)
}

// InRange reports whether a native input value lies inside the entry's
// expected physical range. Entries without a declared range accept
// everything.
func (s Spec) InRange(v float64) bool {
	if !s.HasRange {
		return true
	}
	return v >= s.ValidMin && v <= s.ValidMax
}

// DerivedSpec declares a canonical variable computed from multiple
// canonical co-inputs rather than a single native field.
type DerivedSpec struct {
	Family    domain.InstrumentFamily
	Canonical string
	Unit      string
	Function  string
	Requires  []string

	derive DeriveFunc
}

// Derive evaluates the derived variable for one row's canonical inputs.
func (d DerivedSpec) Derive(inputs map[string]float64) float64 {
	return d.derive(inputs)
}

type yamlEntry struct {
	Family    string   `yaml:"family"`
	Native    string   `yaml:"native"`
	Canonical string   `yaml:"canonical"`
	Unit      string   `yaml:"unit"`
	Converter string   `yaml:"converter"`
	ValidMin  *float64 `yaml:"valid_min"`
	ValidMax  *float64 `yaml:"valid_max"`
}

type yamlDerived struct {
	Family    string   `yaml:"family"`
	Canonical string   `yaml:"canonical"`
	Unit      string   `yaml:"unit"`
	Function  string   `yaml:"function"`
	Requires  []string `yaml:"requires"`
}

type yamlTable struct {
	Version int           `yaml:"version"`
	Entries []yamlEntry   `yaml:"entries"`
	Derived []yamlDerived `yaml:"derived"`
}

type key struct {
	family domain.InstrumentFamily
	native string
}

var (
	specs        map[key]Spec
	derivedSpecs map[domain.InstrumentFamily][]DerivedSpec
	tableVersion int
)

func init() {
	var err error
	specs, derivedSpecs, tableVersion, err = load(dictionaryYAML)
	if err != nil {
		panic(fmt.Sprintf("dictionary: embedded table: %v", err))
	}
}

func load(raw []byte) (map[key]Spec, map[domain.InstrumentFamily][]DerivedSpec, int, error) {
	var table yamlTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, nil, 0, fmt.Errorf("parse table: %w", err)
	}

	entries := make(map[key]Spec, len(table.Entries))
	for _, e := range table.Entries {
		fn, ok := converters[e.Converter]
		if !ok {
			return nil, nil, 0, fmt.Errorf("entry %s/%s: unknown converter %q", e.Family, e.Native, e.Converter)
		}
		spec := Spec{
			Family:    domain.InstrumentFamily(e.Family),
			Native:    e.Native,
			Canonical: e.Canonical,
			Unit:      e.Unit,
			Converter: e.Converter,
			convert:   fn,
		}
		if e.ValidMin != nil && e.ValidMax != nil {
			spec.ValidMin = *e.ValidMin
			spec.ValidMax = *e.ValidMax
			spec.HasRange = true
		}
		k := key{spec.Family, strings.ToLower(e.Native)}
		if _, dup := entries[k]; dup {
			return nil, nil, 0, fmt.Errorf("duplicate entry %s/%s", e.Family, e.Native)
		}
		entries[k] = spec
	}

	derived := make(map[domain.InstrumentFamily][]DerivedSpec)
	for _, d := range table.Derived {
		fn, ok := deriveFuncs[d.Function]
		if !ok {
			return nil, nil, 0, fmt.Errorf("derived %s/%s: unknown function %q", d.Family, d.Canonical, d.Function)
		}
		if len(d.Requires) == 0 {
			return nil, nil, 0, fmt.Errorf("derived %s/%s: empty requires list", d.Family, d.Canonical)
		}
		family := domain.InstrumentFamily(d.Family)
		derived[family] = append(derived[family], DerivedSpec{
			Family:    family,
			Canonical: d.Canonical,
			Unit:      d.Unit,
			Function:  d.Function,
			Requires:  append([]string(nil), d.Requires...),
			derive:    fn,
		})
	}

	return entries, derived, table.Version, nil
}

// Resolve looks up the dictionary entry for a native field. Matching is
// case-insensitive on the native name. A missing entry returns
// errors.ErrVariableNotFound; the caller decides whether to halt or
// carry the field through unmapped.
func Resolve(family domain.InstrumentFamily, native string) (Spec, error) {
	spec, ok := specs[key{family, strings.ToLower(native)}]
	if !ok {
		return Spec{}, errors.VariableNotFound(string(family), native)
	}
	return spec, nil
}

// DerivedFor returns the derived-variable declarations for a family.
func DerivedFor(family domain.InstrumentFamily) []DerivedSpec {
	return derivedSpecs[family]
}

// Version reports the dictionary table version.
func Version() int {
	return tableVersion
}
