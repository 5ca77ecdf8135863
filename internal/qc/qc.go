package qc

import (
	"log/slog"
	"sort"
	"time"

	"ctdkit/internal/errors"
	"ctdkit/pkg/contracts/domain"
)

// DefaultGapFactor is the multiple of the modal sampling interval above
// which a consecutive-timestamp delta counts as a gap.
const DefaultGapFactor = 3.0

// Options configures one validation run.
type Options struct {
	// GapFactor is the gap threshold as a multiple of the modal
	// sampling interval. Zero means DefaultGapFactor.
	GapFactor float64
	// Interpolate fills detected gaps with linearly interpolated
	// samples flagged interpolated. Gaps stay recorded either way.
	Interpolate bool
	// DriftReference supplies deployment start/end reference
	// timestamps for linear clock-drift correction. Nil means no
	// correction is attempted and the dataset is marked uncorrected.
	DriftReference *DriftReference
}

// DriftReference describes externally supplied deployment reference
// timestamps: what the instrument clock read versus the true time, at
// deployment start and end.
type DriftReference struct {
	InstrumentStart time.Time
	InstrumentEnd   time.Time
	ActualStart     time.Time
	ActualEnd       time.Time
}

// Engine validates canonical datasets in place.
type Engine struct {
	logger *slog.Logger
}

// New returns a QC engine.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Validate enforces the dataset's temporal invariants in place:
// dedup, drift correction, gap detection, optional interpolation, and a
// final monotonicity check. Safe to call twice; the second call is a
// no-op.
func (e *Engine) Validate(ds *domain.CanonicalDataset, opts Options) error {
	gapFactor := opts.GapFactor
	if gapFactor <= 0 {
		gapFactor = DefaultGapFactor
	}

	// A drift correction must only ever apply once; re-validating an
	// already corrected dataset would shift it again.
	applyCorrection := opts.DriftReference != nil && !ds.Meta.ClockDriftCorrected
	if applyCorrection && !opts.DriftReference.InstrumentEnd.After(opts.DriftReference.InstrumentStart) {
		// Marking the dataset corrected on a reference no offset can be
		// interpolated from would overstate its provenance.
		return errors.InvalidDriftReference("instrument end does not follow instrument start")
	}
	corrected := ds.Meta.ClockDriftCorrected || applyCorrection

	for _, name := range ds.Variables() {
		series := ds.Series[name]
		e.dedup(series)

		if applyCorrection {
			applyDrift(series, opts.DriftReference)
		}

		if err := checkMonotonic(ds.Meta.SourcePath, series); err != nil {
			return err
		}

		gaps := e.detectGaps(series, gapFactor)
		for _, g := range gaps {
			if !hasGap(ds.Meta.Gaps, g) {
				ds.Meta.Gaps = append(ds.Meta.Gaps, g)
			}
		}
		if opts.Interpolate && len(gaps) > 0 {
			e.interpolate(series, gaps)
			ds.Meta.InterpolationMethod = "linear"
		}

		e.logger.Debug("series validated",
			slog.String("variable", name),
			slog.Int("retained", len(series.Samples)),
			slog.Int("discarded", len(series.Discarded)),
			slog.Int("gaps", len(gaps)))
	}

	ds.Meta.ClockDriftCorrected = corrected
	ds.Meta.Validated = true
	return nil
}

// dedup enforces strictly increasing timestamps with a
// first-seen-wins tie-break: a sample not strictly later than the last
// retained sample is flagged duplicate-discarded and moved aside.
// Already-validated series pass through untouched.
func (e *Engine) dedup(series *domain.Series) {
	retained := series.Samples[:0]
	var lastTime time.Time
	haveLast := false
	for _, s := range series.Samples {
		if haveLast && !s.Time.After(lastTime) {
			s.Flag = domain.FlagDuplicateDiscard
			series.Discarded = append(series.Discarded, s)
			continue
		}
		retained = append(retained, s)
		lastTime = s.Time
		haveLast = true
	}
	series.Samples = retained
}

// applyDrift applies a linear time-offset correction across the series
// based on the deployment reference timestamps. Validate has already
// rejected a non-positive instrument window.
func applyDrift(series *domain.Series, ref *DriftReference) {
	instSpan := ref.InstrumentEnd.Sub(ref.InstrumentStart).Seconds()
	startOffset := ref.ActualStart.Sub(ref.InstrumentStart).Seconds()
	endOffset := ref.ActualEnd.Sub(ref.InstrumentEnd).Seconds()

	for i, s := range series.Samples {
		frac := s.Time.Sub(ref.InstrumentStart).Seconds() / instSpan
		offset := startOffset + frac*(endOffset-startOffset)
		series.Samples[i].Time = s.Time.Add(time.Duration(offset * float64(time.Second))).UTC()
	}
}

// checkMonotonic is the post-correction hard stop.
func checkMonotonic(path string, series *domain.Series) error {
	for i := 1; i < len(series.Samples); i++ {
		if !series.Samples[i].Time.After(series.Samples[i-1].Time) {
			return errors.NonMonotonicAfterCorrection(path, series.Variable, series.Samples[i].Time)
		}
	}
	return nil
}

// detectGaps finds intervals exceeding gapFactor times the modal
// sampling interval. The mode, not the mean, resists outlier skew.
func (e *Engine) detectGaps(series *domain.Series, gapFactor float64) []domain.Gap {
	if len(series.Samples) < 3 {
		return nil
	}

	mode := modalInterval(series.Samples)
	if mode <= 0 {
		return nil
	}
	threshold := time.Duration(float64(mode) * gapFactor)

	var gaps []domain.Gap
	for i := 1; i < len(series.Samples); i++ {
		delta := series.Samples[i].Time.Sub(series.Samples[i-1].Time)
		if delta > threshold {
			gaps = append(gaps, domain.Gap{
				Variable: series.Variable,
				Start:    series.Samples[i-1].Time,
				End:      series.Samples[i].Time,
			})
		}
	}
	return gaps
}

// modalInterval returns the most frequent consecutive-timestamp delta.
func modalInterval(samples []domain.CanonicalSample) time.Duration {
	counts := make(map[time.Duration]int)
	for i := 1; i < len(samples); i++ {
		counts[samples[i].Time.Sub(samples[i-1].Time)]++
	}

	deltas := make([]time.Duration, 0, len(counts))
	for d := range counts {
		deltas = append(deltas, d)
	}
	// Deterministic tie-break: smallest delta wins.
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })

	var mode time.Duration
	best := 0
	for _, d := range deltas {
		if counts[d] > best {
			best = counts[d]
			mode = d
		}
	}
	return mode
}

// interpolate fills each gap with linearly interpolated samples at the
// modal interval, flagged interpolated. Inserted samples never replace
// measured ones.
func (e *Engine) interpolate(series *domain.Series, gaps []domain.Gap) {
	mode := modalInterval(series.Samples)
	if mode <= 0 {
		return
	}

	valueAt := func(t time.Time) (float64, bool) {
		for i := 1; i < len(series.Samples); i++ {
			a, b := series.Samples[i-1], series.Samples[i]
			if (t.After(a.Time) || t.Equal(a.Time)) && (t.Before(b.Time) || t.Equal(b.Time)) {
				span := b.Time.Sub(a.Time).Seconds()
				if span == 0 {
					return a.Value, true
				}
				frac := t.Sub(a.Time).Seconds() / span
				return a.Value + frac*(b.Value-a.Value), true
			}
		}
		return 0, false
	}

	var inserted []domain.CanonicalSample
	for _, g := range gaps {
		for t := g.Start.Add(mode); t.Before(g.End); t = t.Add(mode) {
			if v, ok := valueAt(t); ok {
				inserted = append(inserted, domain.CanonicalSample{
					Time:  t,
					Value: v,
					Flag:  domain.FlagInterpolated,
				})
			}
		}
	}
	if len(inserted) == 0 {
		return
	}

	series.Samples = append(series.Samples, inserted...)
	sort.SliceStable(series.Samples, func(i, j int) bool {
		return series.Samples[i].Time.Before(series.Samples[j].Time)
	})
}

func hasGap(gaps []domain.Gap, g domain.Gap) bool {
	for _, x := range gaps {
		if x.Variable == g.Variable && x.Start.Equal(g.Start) && x.End.Equal(g.End) {
			return true
		}
	}
	return false
}
