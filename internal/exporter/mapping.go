package exporter

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v2"

	"ctdkit/internal/errors"
	"ctdkit/internal/normalizer"
)

//go:embed mapping.yaml
var mappingYAML []byte

// Attribute is the external convention's required attribute set for one
// canonical variable.
type Attribute struct {
	StandardName string  `yaml:"standard_name" json:"standard_name"`
	Units        string  `yaml:"units" json:"units"`
	ValidMin     float64 `yaml:"valid_min" json:"valid_min"`
	ValidMax     float64 `yaml:"valid_max" json:"valid_max"`
}

type mappingEntry struct {
	Canonical string `yaml:"canonical"`
	Attribute `yaml:",inline"`
}

type mappingTable struct {
	Version   int            `yaml:"version"`
	FillValue float64        `yaml:"fill_value"`
	Entries   []mappingEntry `yaml:"entries"`
}

var (
	exportMapping  map[string]Attribute
	mappingVersion int
	fillValue      float64
)

func init() {
	var table mappingTable
	if err := yaml.Unmarshal(mappingYAML, &table); err != nil {
		panic(fmt.Sprintf("exporter: embedded mapping table: %v", err))
	}
	exportMapping = make(map[string]Attribute, len(table.Entries))
	for _, e := range table.Entries {
		exportMapping[e.Canonical] = e.Attribute
	}
	mappingVersion = table.Version
	fillValue = table.FillValue
}

// mapAttribute resolves the export attributes for a canonical variable.
// Unmapped carry-through variables (unmapped:<native>) get a generic
// raw attribute set so their provenance stays visible; anything else
// without a table entry is an ATTRIBUTE_MAPPING_GAP, surfaced rather
// than silently dropped.
func mapAttribute(canonical string) (Attribute, error) {
	if attr, ok := exportMapping[canonical]; ok {
		return attr, nil
	}
	if strings.HasPrefix(canonical, normalizer.UnmappedPrefix) {
		native := strings.TrimPrefix(canonical, normalizer.UnmappedPrefix)
		return Attribute{
			StandardName: "raw_instrument_field_" + native,
			Units:        "unknown",
		}, nil
	}
	return Attribute{}, errors.AttributeMappingGap(canonical)
}

// MappingVersion reports the export mapping table version, embedded in
// every exported file.
func MappingVersion() int {
	return mappingVersion
}
