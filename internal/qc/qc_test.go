package qc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctdkit/internal/errors"
	"ctdkit/pkg/contracts/domain"
)

var qcBase = time.Date(2021, 3, 15, 8, 0, 0, 0, time.UTC)

// tempDataset builds a dataset with one temperature series sampled at
// the given second offsets from qcBase.
func tempDataset(points ...[2]float64) *domain.CanonicalDataset {
	ds := domain.NewCanonicalDataset(domain.Metadata{
		RunID:      "test-run",
		SourcePath: "cast.cnv",
	})
	for _, p := range points {
		ds.AddSample("sea_water_temperature", "degC", domain.CanonicalSample{
			Time:  qcBase.Add(time.Duration(p[0] * float64(time.Second))),
			Value: p[1],
			Flag:  domain.FlagGood,
		})
	}
	return ds
}

func TestValidateDedupFirstWins(t *testing.T) {
	ds := tempDataset([2]float64{0, 8.1}, [2]float64{10, 8.2}, [2]float64{10, 99.9}, [2]float64{20, 8.3})

	require.NoError(t, New(nil).Validate(ds, Options{}))

	retained := ds.GetSeries("sea_water_temperature")
	require.Len(t, retained, 3)
	// The first occurrence of the duplicated timestamp is the one kept.
	assert.InDelta(t, 8.2, retained[1].Value, 1e-9)

	discarded := ds.Series["sea_water_temperature"].Discarded
	require.Len(t, discarded, 1)
	assert.InDelta(t, 99.9, discarded[0].Value, 1e-9)
	assert.Equal(t, domain.FlagDuplicateDiscard, discarded[0].Flag)

	assert.True(t, ds.Meta.Validated)
	assert.False(t, ds.Meta.ClockDriftCorrected)
}

func TestValidateGapDetection(t *testing.T) {
	// Modal interval 10s, factor 3: the 40s delta is a gap.
	ds := tempDataset([2]float64{0, 1}, [2]float64{10, 2}, [2]float64{20, 3}, [2]float64{60, 4})

	require.NoError(t, New(nil).Validate(ds, Options{GapFactor: 3}))

	require.Len(t, ds.Meta.Gaps, 1)
	g := ds.Meta.Gaps[0]
	assert.Equal(t, "sea_water_temperature", g.Variable)
	assert.Equal(t, qcBase.Add(20*time.Second), g.Start)
	assert.Equal(t, qcBase.Add(60*time.Second), g.End)

	// Without interpolation the samples are untouched.
	assert.Len(t, ds.GetSeries("sea_water_temperature"), 4)
	assert.Empty(t, ds.Meta.InterpolationMethod)
}

func TestValidateModalIntervalTieBreaksSmall(t *testing.T) {
	// Deltas 5,5,10,10,20: the 5s and 10s counts tie, and the smaller
	// delta wins, so the threshold is 15s and the 20s delta is a gap.
	ds := tempDataset([2]float64{0, 1}, [2]float64{5, 2}, [2]float64{10, 3},
		[2]float64{20, 4}, [2]float64{30, 5}, [2]float64{50, 6})

	require.NoError(t, New(nil).Validate(ds, Options{GapFactor: 3}))

	require.Len(t, ds.Meta.Gaps, 1)
	assert.Equal(t, qcBase.Add(30*time.Second), ds.Meta.Gaps[0].Start)
}

func TestValidateInterpolation(t *testing.T) {
	ds := tempDataset([2]float64{0, 1}, [2]float64{10, 2}, [2]float64{20, 2}, [2]float64{60, 6})

	require.NoError(t, New(nil).Validate(ds, Options{Interpolate: true}))

	samples := ds.GetSeries("sea_water_temperature")
	require.Len(t, samples, 7)
	assert.Equal(t, "linear", ds.Meta.InterpolationMethod)

	// Inserted at the modal 10s step: 30s, 40s, 50s, linear between the
	// measured values 2 and 6.
	for i, want := range []struct {
		offset time.Duration
		value  float64
	}{
		{30 * time.Second, 3},
		{40 * time.Second, 4},
		{50 * time.Second, 5},
	} {
		s := samples[3+i]
		assert.Equal(t, qcBase.Add(want.offset), s.Time)
		assert.InDelta(t, want.value, s.Value, 1e-9)
		assert.Equal(t, domain.FlagInterpolated, s.Flag)
	}

	// The gap stays on record even though it was filled.
	require.Len(t, ds.Meta.Gaps, 1)
}

func TestValidateDriftCorrection(t *testing.T) {
	ds := tempDataset([2]float64{0, 1}, [2]float64{50, 2}, [2]float64{100, 3})

	ref := &DriftReference{
		InstrumentStart: qcBase,
		InstrumentEnd:   qcBase.Add(100 * time.Second),
		ActualStart:     qcBase,
		ActualEnd:       qcBase.Add(110 * time.Second),
	}
	require.NoError(t, New(nil).Validate(ds, Options{DriftReference: ref}))

	samples := ds.GetSeries("sea_water_temperature")
	// Offset interpolates linearly from 0s at start to +10s at end.
	assert.Equal(t, qcBase, samples[0].Time)
	assert.Equal(t, qcBase.Add(55*time.Second), samples[1].Time)
	assert.Equal(t, qcBase.Add(110*time.Second), samples[2].Time)
	assert.True(t, ds.Meta.ClockDriftCorrected)
}

func TestValidateIdempotent(t *testing.T) {
	ds := tempDataset([2]float64{0, 1}, [2]float64{50, 2}, [2]float64{100, 3})
	ref := &DriftReference{
		InstrumentStart: qcBase,
		InstrumentEnd:   qcBase.Add(100 * time.Second),
		ActualStart:     qcBase,
		ActualEnd:       qcBase.Add(110 * time.Second),
	}
	opts := Options{DriftReference: ref}

	engine := New(nil)
	require.NoError(t, engine.Validate(ds, opts))
	once := append([]domain.CanonicalSample(nil), ds.GetSeries("sea_water_temperature")...)

	// A second run must not shift the clock again.
	require.NoError(t, engine.Validate(ds, opts))
	assert.Equal(t, once, ds.GetSeries("sea_water_temperature"))
	assert.True(t, ds.Meta.ClockDriftCorrected)
}

func TestValidateNonMonotonicAfterCorrection(t *testing.T) {
	ds := tempDataset([2]float64{0, 1}, [2]float64{1, 2}, [2]float64{10, 3})

	// A severe backwards drift at deployment end drags later samples
	// before earlier ones.
	ref := &DriftReference{
		InstrumentStart: qcBase,
		InstrumentEnd:   qcBase.Add(10 * time.Second),
		ActualStart:     qcBase,
		ActualEnd:       qcBase.Add(-20 * time.Second),
	}
	err := New(nil).Validate(ds, Options{DriftReference: ref})
	assert.ErrorIs(t, err, errors.ErrNonMonotonicAfterCorrection)
}

func TestValidateRejectsUnorderedDriftReference(t *testing.T) {
	ds := tempDataset([2]float64{0, 1}, [2]float64{10, 2})

	ref := &DriftReference{
		InstrumentStart: qcBase.Add(100 * time.Second),
		InstrumentEnd:   qcBase,
		ActualStart:     qcBase.Add(100 * time.Second),
		ActualEnd:       qcBase,
	}
	err := New(nil).Validate(ds, Options{DriftReference: ref})
	assert.ErrorIs(t, err, errors.ErrInvalidDriftReference)
	// The dataset must not claim a correction that never ran.
	assert.False(t, ds.Meta.ClockDriftCorrected)
	assert.False(t, ds.Meta.Validated)
}

func TestValidateShortSeriesNoGaps(t *testing.T) {
	ds := tempDataset([2]float64{0, 1}, [2]float64{10, 2})
	require.NoError(t, New(nil).Validate(ds, Options{Interpolate: true}))
	assert.Empty(t, ds.Meta.Gaps)
	assert.Len(t, ds.GetSeries("sea_water_temperature"), 2)
}
