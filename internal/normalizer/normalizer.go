package normalizer

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"ctdkit/internal/dictionary"
	"ctdkit/internal/errors"
	"ctdkit/pkg/contracts/domain"
)

// UnmappedPrefix marks canonical identities synthesized for native
// fields the dictionary does not know.
const UnmappedPrefix = "unmapped:"

// Warning is a soft, non-fatal finding produced during normalization.
type Warning struct {
	Field   string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Field, w.Message)
}

// Normalizer converts raw records into canonical datasets using the
// shared, read-only variable dictionary.
type Normalizer struct {
	logger *slog.Logger
}

// New returns a Normalizer.
func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize converts one RawRecord into a CanonicalDataset. The raw
// record is not retained. Warnings report unmapped fields; they are
// also copied into the dataset metadata so the exported file documents
// its own caveats.
func (n *Normalizer) Normalize(raw *domain.RawRecord) (*domain.CanonicalDataset, []Warning, error) {
	ds := domain.NewCanonicalDataset(domain.Metadata{
		RunID:            uuid.NewString(),
		InstrumentFamily: raw.Family,
		InstrumentSerial: raw.Serial,
		DeploymentID:     raw.DeploymentID,
		SourcePath:       raw.SourcePath,
		SourceChecksum:   raw.SourceChecksum,
		Calibration:      raw.Calibration,
	})

	var warnings []Warning
	warned := make(map[string]bool)
	directCanonicals := make(map[string]bool)

	// First pass over field names decides which derived variables can
	// be evaluated at all: a required co-input absent from every row is
	// a structural failure, not a per-row one.
	for _, name := range raw.FieldNames() {
		if spec, err := dictionary.Resolve(raw.Family, name); err == nil {
			directCanonicals[spec.Canonical] = true
		}
	}

	var derived []dictionary.DerivedSpec
	for _, d := range dictionary.DerivedFor(raw.Family) {
		if directCanonicals[d.Canonical] {
			// The instrument records the quantity directly; nothing to derive.
			continue
		}
		for _, req := range d.Requires {
			if !directCanonicals[req] {
				return nil, nil, errors.IncompleteDerivation(raw.SourcePath, d.Canonical, req)
			}
		}
		derived = append(derived, d)
	}

	for _, row := range raw.Rows {
		rowValues := make(map[string]float64, len(row.Fields))
		rowFlags := make(map[string]domain.QualityFlag, len(row.Fields))

		for _, field := range row.Fields {
			spec, err := dictionary.Resolve(raw.Family, field.Name)
			if err != nil {
				if stderrors.Is(err, errors.ErrVariableNotFound) {
					if !warned[field.Name] {
						warned[field.Name] = true
						w := Warning{Field: field.Name, Message: "no dictionary entry; carried through unmapped"}
						warnings = append(warnings, w)
						n.logger.Warn("unmapped field carried through",
							slog.String("family", string(raw.Family)),
							slog.String("field", field.Name))
					}
					ds.AddSample(UnmappedPrefix+field.Name, "", domain.CanonicalSample{
						Time:  row.Time,
						Value: field.Value,
						Flag:  domain.FlagGood,
					})
					continue
				}
				return nil, nil, err
			}

			flag := domain.FlagGood
			if !math.IsNaN(field.Value) && !spec.InRange(field.Value) {
				flag = domain.FlagOutOfRange
			}
			value := spec.Convert(field.Value)
			ds.AddSample(spec.Canonical, spec.Unit, domain.CanonicalSample{
				Time:  row.Time,
				Value: value,
				Flag:  flag,
			})
			rowValues[spec.Canonical] = value
			if prev, ok := rowFlags[spec.Canonical]; !ok || prev == domain.FlagGood {
				rowFlags[spec.Canonical] = flag
			}
		}

		// Derived variables evaluate once per row, after all co-inputs
		// for the row were converted. A row missing one co-input skips
		// the derivation for that row only.
		for _, d := range derived {
			inputs := make(map[string]float64, len(d.Requires))
			flag := domain.FlagGood
			complete := true
			for _, req := range d.Requires {
				v, ok := rowValues[req]
				if !ok || math.IsNaN(v) {
					complete = false
					break
				}
				inputs[req] = v
				if rowFlags[req] == domain.FlagOutOfRange {
					flag = domain.FlagOutOfRange
				}
			}
			if !complete {
				continue
			}
			ds.AddSample(d.Canonical, d.Unit, domain.CanonicalSample{
				Time:  row.Time,
				Value: d.Derive(inputs),
				Flag:  flag,
			})
		}
	}

	for _, w := range warnings {
		ds.Meta.Warnings = append(ds.Meta.Warnings, w.String())
	}

	n.logger.Info("record normalized",
		slog.String("path", raw.SourcePath),
		slog.String("family", string(raw.Family)),
		slog.Int("variables", len(ds.Series)),
		slog.Int("warnings", len(warnings)))

	return ds, warnings, nil
}
