package exporter

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"ctdkit/internal/errors"
	"ctdkit/pkg/contracts/domain"
)

// Convention is the metadata convention identifier stamped into every
// exported file.
const Convention = "CF-1.8"

// Supported target format identifiers.
const (
	FormatCFJSON = "cf-json"
	FormatCSV    = "csv"
)

// Exporter serializes validated canonical datasets.
type Exporter struct {
	logger *slog.Logger
}

// New returns an Exporter.
func New(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{logger: logger}
}

// Export serializes the dataset to the given target format. The dataset
// is read-only to the exporter.
func (e *Exporter) Export(ds *domain.CanonicalDataset, format string) ([]byte, error) {
	switch format {
	case FormatCFJSON:
		return e.exportCFJSON(ds)
	case FormatCSV:
		return e.exportCSV(ds)
	}
	return nil, errors.UnsupportedTargetFormat(format)
}

// WriteFile exports the dataset and writes it next to the configured
// output path, creating parent directories as needed.
func (e *Exporter) WriteFile(ds *domain.CanonicalDataset, format, path string) error {
	data, err := e.Export(ds, format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "Exporter", "WriteFile", "create output directory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "Exporter", "WriteFile", "write output file")
	}
	e.logger.Info("dataset exported",
		slog.String("path", path),
		slog.String("format", format),
		slog.Int("bytes", len(data)))
	return nil
}

// Reimport parses an exported file back into a CanonicalDataset. Used
// for the round-trip self-consistency contract.
func (e *Exporter) Reimport(data []byte, format string) (*domain.CanonicalDataset, error) {
	switch format {
	case FormatCFJSON:
		return e.reimportCFJSON(data)
	case FormatCSV:
		return e.reimportCSV(data)
	}
	return nil, errors.UnsupportedTargetFormat(format)
}

// OutputName derives the exported file name for a source file.
func OutputName(sourcePath, format string) (string, error) {
	base := filepath.Base(sourcePath)
	if ext := filepath.Ext(base); ext != "" {
		base = base[:len(base)-len(ext)]
	}
	switch format {
	case FormatCFJSON:
		return base + ".cf.json", nil
	case FormatCSV:
		return base + ".cf.csv", nil
	}
	return "", errors.UnsupportedTargetFormat(format)
}

// encodeValue replaces NaN with the table's declared fill value so the
// serialization stays format-legal; decodeValue restores it.
func encodeValue(v float64) float64 {
	if math.IsNaN(v) {
		return fillValue
	}
	return v
}

func decodeValue(v float64) float64 {
	if v == fillValue {
		return math.NaN()
	}
	return v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
