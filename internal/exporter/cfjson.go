package exporter

import (
	"encoding/json"

	"ctdkit/internal/errors"
	"ctdkit/pkg/contracts/domain"
)

// cfDocument is the cf-json serialization: dataset attributes plus one
// variable block per canonical series, attribute-complete per the
// export mapping table.
type cfDocument struct {
	Convention     string          `json:"convention"`
	MappingVersion int             `json:"mapping_version"`
	FillValue      float64         `json:"fill_value"`
	Meta           domain.Metadata `json:"meta"`
	Variables      []cfVariable    `json:"variables"`
}

type cfVariable struct {
	Name       string    `json:"name"`
	Unit       string    `json:"unit"`
	Attributes Attribute `json:"attributes"`
	Times      []string  `json:"times"`
	Values     []float64 `json:"values"`
	Flags      []string  `json:"flags"`
	// Discarded duplicates ride along so the file documents what QC
	// removed; they are not part of the retained series.
	DiscardedTimes  []string  `json:"discarded_times,omitempty"`
	DiscardedValues []float64 `json:"discarded_values,omitempty"`
}

func (e *Exporter) exportCFJSON(ds *domain.CanonicalDataset) ([]byte, error) {
	doc := cfDocument{
		Convention:     Convention,
		MappingVersion: mappingVersion,
		FillValue:      fillValue,
		Meta:           ds.Meta,
	}

	for _, name := range ds.Variables() {
		series := ds.Series[name]
		attr, err := mapAttribute(name)
		if err != nil {
			return nil, err
		}

		v := cfVariable{
			Name:       name,
			Unit:       series.Unit,
			Attributes: attr,
			Times:      make([]string, 0, len(series.Samples)),
			Values:     make([]float64, 0, len(series.Samples)),
			Flags:      make([]string, 0, len(series.Samples)),
		}
		for _, s := range series.Samples {
			v.Times = append(v.Times, formatTime(s.Time))
			v.Values = append(v.Values, encodeValue(s.Value))
			v.Flags = append(v.Flags, string(s.Flag))
		}
		for _, s := range series.Discarded {
			v.DiscardedTimes = append(v.DiscardedTimes, formatTime(s.Time))
			v.DiscardedValues = append(v.DiscardedValues, encodeValue(s.Value))
		}
		doc.Variables = append(doc.Variables, v)
	}

	return json.MarshalIndent(doc, "", "  ")
}

func (e *Exporter) reimportCFJSON(data []byte) (*domain.CanonicalDataset, error) {
	var doc cfDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "Exporter", "Reimport", "decode cf-json document")
	}

	ds := domain.NewCanonicalDataset(doc.Meta)
	for _, v := range doc.Variables {
		if len(v.Values) != len(v.Times) || len(v.Flags) != len(v.Times) {
			return nil, errors.Wrap(
				errFieldCount(v.Name), "Exporter", "Reimport", "validate variable block")
		}
		if len(v.DiscardedValues) != len(v.DiscardedTimes) {
			return nil, errors.Wrap(
				errFieldCount(v.Name), "Exporter", "Reimport", "validate discarded block")
		}
		series := &domain.Series{Variable: v.Name, Unit: v.Unit}
		for i := range v.Times {
			t, err := parseTime(v.Times[i])
			if err != nil {
				return nil, errors.Wrap(err, "Exporter", "Reimport", "parse sample time")
			}
			flag, err := domain.ParseQualityFlag(v.Flags[i])
			if err != nil {
				return nil, errors.Wrap(err, "Exporter", "Reimport", "parse quality flag")
			}
			series.Samples = append(series.Samples, domain.CanonicalSample{
				Time:  t,
				Value: decodeValue(v.Values[i]),
				Flag:  flag,
			})
		}
		for i := range v.DiscardedTimes {
			t, err := parseTime(v.DiscardedTimes[i])
			if err != nil {
				return nil, errors.Wrap(err, "Exporter", "Reimport", "parse discarded time")
			}
			series.Discarded = append(series.Discarded, domain.CanonicalSample{
				Time:  t,
				Value: decodeValue(v.DiscardedValues[i]),
				Flag:  domain.FlagDuplicateDiscard,
			})
		}
		ds.Series[v.Name] = series
	}
	return ds, nil
}

type errFieldCount string

func (e errFieldCount) Error() string {
	return "variable " + string(e) + ": times/values/flags lengths disagree"
}
