package exporter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"ctdkit/internal/errors"
	"ctdkit/pkg/contracts/domain"
)

// csvHeader is the fixed column layout of the csv target format.
var csvHeader = []string{"time", "variable", "value", "flag"}

// exportCSV renders the dataset as comment-prefixed attribute lines
// followed by one row per sample. Discarded duplicates are included,
// identifiable by their flag, so the file stays self-documenting.
func (e *Exporter) exportCSV(ds *domain.CanonicalDataset) ([]byte, error) {
	var buf bytes.Buffer

	writeAttr := func(k, v string) {
		fmt.Fprintf(&buf, "# %s: %s\n", k, v)
	}

	writeAttr("convention", Convention)
	writeAttr("mapping_version", strconv.Itoa(mappingVersion))
	writeAttr("fill_value", formatFloat(fillValue))

	attrs := ds.GetMetadata()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeAttr(k, attrs[k])
	}

	for _, name := range ds.Variables() {
		attr, err := mapAttribute(name)
		if err != nil {
			return nil, err
		}
		writeAttr("units:"+name, ds.Series[name].Unit)
		writeAttr("standard_name:"+name, attr.StandardName)
	}

	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, errors.Wrap(err, "Exporter", "Export", "write csv header")
	}
	for _, name := range ds.Variables() {
		series := ds.Series[name]
		for _, s := range series.Samples {
			if err := w.Write(csvRow(name, s)); err != nil {
				return nil, errors.Wrap(err, "Exporter", "Export", "write csv row")
			}
		}
		for _, s := range series.Discarded {
			if err := w.Write(csvRow(name, s)); err != nil {
				return nil, errors.Wrap(err, "Exporter", "Export", "write csv row")
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "Exporter", "Export", "flush csv")
	}
	return buf.Bytes(), nil
}

func csvRow(variable string, s domain.CanonicalSample) []string {
	return []string{
		formatTime(s.Time),
		variable,
		formatFloat(encodeValue(s.Value)),
		string(s.Flag),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (e *Exporter) reimportCSV(data []byte) (*domain.CanonicalDataset, error) {
	lines := strings.Split(string(data), "\n")
	attrs := make(map[string]string)
	var body []string
	for _, line := range lines {
		if strings.HasPrefix(line, "# ") {
			kv := strings.SplitN(strings.TrimPrefix(line, "# "), ": ", 2)
			if len(kv) == 2 {
				attrs[kv[0]] = kv[1]
			}
			continue
		}
		if strings.TrimSpace(line) != "" {
			body = append(body, line)
		}
	}

	meta, err := metadataFromAttrs(attrs)
	if err != nil {
		return nil, errors.Wrap(err, "Exporter", "Reimport", "rebuild metadata")
	}
	ds := domain.NewCanonicalDataset(meta)

	r := csv.NewReader(strings.NewReader(strings.Join(body, "\n")))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "Exporter", "Reimport", "parse csv body")
	}
	if len(rows) == 0 || !slices.Equal(rows[0], csvHeader) {
		return nil, errors.Wrap(fmt.Errorf("missing header row"), "Exporter", "Reimport", "parse csv body")
	}

	for i, row := range rows[1:] {
		t, err := parseTime(row[0])
		if err != nil {
			return nil, errors.Wrap(err, "Exporter", "Reimport", "parse sample time")
		}
		v, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, errors.Wrap(fmt.Errorf("row %d: bad value %q", i+1, row[2]),
				"Exporter", "Reimport", "parse sample value")
		}
		flag, err := domain.ParseQualityFlag(row[3])
		if err != nil {
			return nil, errors.Wrap(err, "Exporter", "Reimport", "parse quality flag")
		}

		name := row[1]
		series, ok := ds.Series[name]
		if !ok {
			series = &domain.Series{Variable: name, Unit: attrs["units:"+name]}
			ds.Series[name] = series
		}
		sample := domain.CanonicalSample{Time: t, Value: decodeValue(v), Flag: flag}
		if flag == domain.FlagDuplicateDiscard {
			series.Discarded = append(series.Discarded, sample)
		} else {
			series.Samples = append(series.Samples, sample)
		}
	}
	return ds, nil
}

// metadataFromAttrs inverts GetMetadata: the exported attribute lines
// carry everything needed to rebuild the typed metadata.
func metadataFromAttrs(attrs map[string]string) (domain.Metadata, error) {
	meta := domain.Metadata{
		RunID:            attrs["run_id"],
		InstrumentFamily: domain.InstrumentFamily(attrs["instrument_family"]),
		InstrumentSerial: attrs["instrument_serial"],
		DeploymentID:     attrs["deployment_id"],
		SourcePath:       attrs["source_path"],
		SourceChecksum:   attrs["source_checksum"],
	}
	meta.ClockDriftCorrected = attrs["clock_drift_corrected"] == "true"
	meta.Validated = attrs["validated"] == "true"
	meta.InterpolationMethod = attrs["interpolation_method"]

	for k, v := range attrs {
		if name, ok := strings.CutPrefix(k, "calibration:"); ok {
			if meta.Calibration == nil {
				meta.Calibration = make(map[string]string)
			}
			meta.Calibration[name] = v
		}
	}

	for i := 0; ; i++ {
		w, ok := attrs[fmt.Sprintf("warning:%d", i)]
		if !ok {
			break
		}
		meta.Warnings = append(meta.Warnings, w)
	}

	for i := 0; ; i++ {
		g, ok := attrs[fmt.Sprintf("gap:%d", i)]
		if !ok {
			break
		}
		gap, err := parseGapAttr(g)
		if err != nil {
			return domain.Metadata{}, err
		}
		meta.Gaps = append(meta.Gaps, gap)
	}

	return meta, nil
}

// parseGapAttr parses the "variable start/end" form GetMetadata emits.
func parseGapAttr(s string) (domain.Gap, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return domain.Gap{}, fmt.Errorf("malformed gap attribute %q", s)
	}
	span := strings.SplitN(fields[1], "/", 2)
	if len(span) != 2 {
		return domain.Gap{}, fmt.Errorf("malformed gap span %q", fields[1])
	}
	start, err := time.Parse(time.RFC3339Nano, span[0])
	if err != nil {
		return domain.Gap{}, fmt.Errorf("gap start %q: %w", span[0], err)
	}
	end, err := time.Parse(time.RFC3339Nano, span[1])
	if err != nil {
		return domain.Gap{}, fmt.Errorf("gap end %q: %w", span[1], err)
	}
	return domain.Gap{Variable: fields[0], Start: start.UTC(), End: end.UTC()}, nil
}
