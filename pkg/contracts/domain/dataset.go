package domain

import (
	"fmt"
	"sort"
	"time"
)

// QualityFlag annotates the provenance and validity of one sample.
type QualityFlag string

const (
	FlagGood             QualityFlag = "good"
	FlagInterpolated     QualityFlag = "interpolated"
	FlagOutOfRange       QualityFlag = "out-of-range"
	FlagDuplicateDiscard QualityFlag = "duplicate-discarded"
)

// ParseQualityFlag converts a serialized flag string back to its typed
// value, rejecting anything outside the closed set.
func ParseQualityFlag(s string) (QualityFlag, error) {
	switch QualityFlag(s) {
	case FlagGood, FlagInterpolated, FlagOutOfRange, FlagDuplicateDiscard:
		return QualityFlag(s), nil
	}
	return "", fmt.Errorf("unknown quality flag %q", s)
}

// CanonicalSample is one timestamped physical measurement in the
// variable's canonical SI unit.
type CanonicalSample struct {
	Time  time.Time   `json:"time"`
	Value float64     `json:"value"`
	Flag  QualityFlag `json:"flag"`
}

// Series holds one canonical variable's time-ordered samples. Samples
// are the retained series; Discarded holds duplicates the QC engine
// removed, kept so the export stays self-documenting.
type Series struct {
	Variable  string            `json:"variable" validate:"required"`
	Unit      string            `json:"unit"`
	Samples   []CanonicalSample `json:"samples"`
	Discarded []CanonicalSample `json:"discarded,omitempty"`
}

// Gap is a sampling interruption the QC engine detected: an interval
// between two retained samples exceeding the configured multiple of the
// series' modal sampling interval. Gaps are metadata, not samples.
type Gap struct {
	Variable string    `json:"variable"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// Metadata is the dataset-level provenance record. Everything in it is
// embedded in the exported file so the output documents its own quality
// caveats without the original processing log.
type Metadata struct {
	RunID               string            `json:"run_id"`
	InstrumentFamily    InstrumentFamily  `json:"instrument_family"`
	InstrumentSerial    string            `json:"instrument_serial,omitempty"`
	DeploymentID        string            `json:"deployment_id,omitempty"`
	SourcePath          string            `json:"source_path"`
	SourceChecksum      string            `json:"source_checksum"`
	Calibration         map[string]string `json:"calibration,omitempty"`
	Warnings            []string          `json:"warnings,omitempty"`
	Gaps                []Gap             `json:"gaps,omitempty"`
	ClockDriftCorrected bool              `json:"clock_drift_corrected"`
	InterpolationMethod string            `json:"interpolation_method,omitempty"`
	Validated           bool              `json:"validated"`
}

// CanonicalDataset is the pipeline's central artifact: canonical
// variable series plus dataset-level metadata. Created by the
// normalizer, annotated in place by the QC engine, read-only for the
// exporter.
type CanonicalDataset struct {
	Meta   Metadata           `json:"meta"`
	Series map[string]*Series `json:"series"`
}

// NewCanonicalDataset returns an empty dataset with initialized series map.
func NewCanonicalDataset(meta Metadata) *CanonicalDataset {
	return &CanonicalDataset{Meta: meta, Series: make(map[string]*Series)}
}

// AddSample appends a sample to the named variable's series, creating
// the series on first use.
func (d *CanonicalDataset) AddSample(variable, unit string, s CanonicalSample) {
	sr, ok := d.Series[variable]
	if !ok {
		sr = &Series{Variable: variable, Unit: unit}
		d.Series[variable] = sr
	}
	sr.Samples = append(sr.Samples, s)
}

// Variables returns the canonical variable names in sorted order, so
// iteration over the dataset is deterministic.
func (d *CanonicalDataset) Variables() []string {
	names := make([]string, 0, len(d.Series))
	for name := range d.Series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetSeries returns the retained samples of one variable in time order.
// This is the read-only query surface external consumers use.
func (d *CanonicalDataset) GetSeries(variable string) []CanonicalSample {
	sr, ok := d.Series[variable]
	if !ok {
		return nil
	}
	return sr.Samples
}

// GetMetadata flattens the dataset metadata into attribute name/value
// pairs for consumers that only speak strings.
func (d *CanonicalDataset) GetMetadata() map[string]string {
	attrs := map[string]string{
		"run_id":                d.Meta.RunID,
		"instrument_family":     string(d.Meta.InstrumentFamily),
		"source_path":           d.Meta.SourcePath,
		"source_checksum":       d.Meta.SourceChecksum,
		"clock_drift_corrected": fmt.Sprintf("%t", d.Meta.ClockDriftCorrected),
		"validated":             fmt.Sprintf("%t", d.Meta.Validated),
	}
	if d.Meta.InstrumentSerial != "" {
		attrs["instrument_serial"] = d.Meta.InstrumentSerial
	}
	if d.Meta.DeploymentID != "" {
		attrs["deployment_id"] = d.Meta.DeploymentID
	}
	if d.Meta.InterpolationMethod != "" {
		attrs["interpolation_method"] = d.Meta.InterpolationMethod
	}
	for k, v := range d.Meta.Calibration {
		attrs["calibration:"+k] = v
	}
	for i, w := range d.Meta.Warnings {
		attrs[fmt.Sprintf("warning:%d", i)] = w
	}
	for i, g := range d.Meta.Gaps {
		attrs[fmt.Sprintf("gap:%d", i)] = fmt.Sprintf("%s %s/%s",
			g.Variable, g.Start.UTC().Format(time.RFC3339Nano), g.End.UTC().Format(time.RFC3339Nano))
	}
	return attrs
}

// TimeRange reports the dataset's global time range as the intersection
// of all per-variable ranges; union selects the envelope instead.
func (d *CanonicalDataset) TimeRange(union bool) (start, end time.Time, ok bool) {
	for _, name := range d.Variables() {
		samples := d.Series[name].Samples
		if len(samples) == 0 {
			continue
		}
		first, last := samples[0].Time, samples[len(samples)-1].Time
		if !ok {
			start, end, ok = first, last, true
			continue
		}
		if union {
			if first.Before(start) {
				start = first
			}
			if last.After(end) {
				end = last
			}
		} else {
			if first.After(start) {
				start = first
			}
			if last.Before(end) {
				end = last
			}
		}
	}
	return start, end, ok
}
