package exporter

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctdkit/internal/errors"
	"ctdkit/pkg/contracts/domain"
)

var expBase = time.Date(2021, 3, 15, 8, 0, 0, 0, time.UTC)

// validatedDataset builds a dataset exercising every serialization
// corner: NaN values, all four flags, discarded duplicates, unmapped
// carry-through variables, and fully populated metadata.
func validatedDataset() *domain.CanonicalDataset {
	ds := domain.NewCanonicalDataset(domain.Metadata{
		RunID:            "run-0001",
		InstrumentFamily: domain.FamilySeaBirdCNV,
		InstrumentSerial: "5083",
		DeploymentID:     "heligoland-2021",
		SourcePath:       "cast.cnv",
		SourceChecksum:   "deadbeef",
		Calibration:      map[string]string{"CTcor": "3.25e-06"},
		Warnings:         []string{"tilt: no dictionary entry; carried through unmapped"},
		Gaps: []domain.Gap{{
			Variable: "sea_water_temperature",
			Start:    expBase.Add(20 * time.Second),
			End:      expBase.Add(60 * time.Second),
		}},
		ClockDriftCorrected: true,
		InterpolationMethod: "linear",
		Validated:           true,
	})

	temp := &domain.Series{Variable: "sea_water_temperature", Unit: "degC"}
	temp.Samples = []domain.CanonicalSample{
		{Time: expBase, Value: 8.31, Flag: domain.FlagGood},
		{Time: expBase.Add(10 * time.Second), Value: math.NaN(), Flag: domain.FlagGood},
		{Time: expBase.Add(20 * time.Second), Value: 99.5, Flag: domain.FlagOutOfRange},
		{Time: expBase.Add(30 * time.Second), Value: 8.4, Flag: domain.FlagInterpolated},
	}
	temp.Discarded = []domain.CanonicalSample{
		{Time: expBase.Add(10 * time.Second), Value: 8.35, Flag: domain.FlagDuplicateDiscard},
	}
	ds.Series[temp.Variable] = temp

	tilt := &domain.Series{Variable: "unmapped:tilt", Unit: ""}
	tilt.Samples = []domain.CanonicalSample{
		{Time: expBase, Value: 1.5, Flag: domain.FlagGood},
	}
	ds.Series[tilt.Variable] = tilt

	return ds
}

func assertSamplesEqual(t *testing.T, want, got []domain.CanonicalSample) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Time.Equal(got[i].Time), "sample %d time", i)
		assert.Equal(t, want[i].Flag, got[i].Flag, "sample %d flag", i)
		if math.IsNaN(want[i].Value) {
			assert.True(t, math.IsNaN(got[i].Value), "sample %d should be NaN", i)
		} else {
			assert.InDelta(t, want[i].Value, got[i].Value, 1e-12, "sample %d value", i)
		}
	}
}

func assertRoundTrip(t *testing.T, format string) {
	t.Helper()
	ds := validatedDataset()
	e := New(nil)

	data, err := e.Export(ds, format)
	require.NoError(t, err)

	got, err := e.Reimport(data, format)
	require.NoError(t, err)

	assert.Equal(t, ds.Meta, got.Meta)
	assert.Equal(t, ds.Variables(), got.Variables())
	for _, name := range ds.Variables() {
		assertSamplesEqual(t, ds.Series[name].Samples, got.Series[name].Samples)
		assert.Equal(t, ds.Series[name].Unit, got.Series[name].Unit, "unit of %s", name)
	}

	// Discarded duplicates survive the trip separated from the series.
	gotTemp := got.Series["sea_water_temperature"]
	require.Len(t, gotTemp.Discarded, 1)
	assert.InDelta(t, 8.35, gotTemp.Discarded[0].Value, 1e-12)
	assert.Equal(t, domain.FlagDuplicateDiscard, gotTemp.Discarded[0].Flag)
}

func TestCFJSONRoundTrip(t *testing.T) { assertRoundTrip(t, FormatCFJSON) }
func TestCSVRoundTrip(t *testing.T)    { assertRoundTrip(t, FormatCSV) }

func TestExportReplacesNaN(t *testing.T) {
	e := New(nil)
	for _, format := range []string{FormatCFJSON, FormatCSV} {
		data, err := e.Export(validatedDataset(), format)
		require.NoError(t, err)
		text := string(data)
		assert.NotContains(t, text, "NaN", "%s must not emit literal NaN", format)
		assert.Contains(t, text, "-9999", "%s should carry the fill value", format)
	}
}

func TestExportCSVAttributeLines(t *testing.T) {
	data, err := New(nil).Export(validatedDataset(), FormatCSV)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, "# convention: CF-1.8\n")
	assert.Contains(t, text, "# calibration:CTcor: 3.25e-06\n")
	assert.Contains(t, text, "# standard_name:sea_water_temperature: sea_water_temperature\n")
	assert.Contains(t, text, "# standard_name:unmapped:tilt: raw_instrument_field_tilt\n")
	assert.Contains(t, text, "# gap:0: sea_water_temperature ")
}

func TestExportUnsupportedFormat(t *testing.T) {
	e := New(nil)

	_, err := e.Export(validatedDataset(), "netcdf")
	assert.ErrorIs(t, err, errors.ErrUnsupportedTargetFormat)

	_, err = e.Reimport([]byte("{}"), "netcdf")
	assert.ErrorIs(t, err, errors.ErrUnsupportedTargetFormat)

	_, err = OutputName("cast.cnv", "netcdf")
	assert.ErrorIs(t, err, errors.ErrUnsupportedTargetFormat)
}

func TestExportAttributeMappingGap(t *testing.T) {
	ds := domain.NewCanonicalDataset(domain.Metadata{RunID: "r"})
	ds.AddSample("mystery_quantity", "?", domain.CanonicalSample{
		Time: expBase, Value: 1, Flag: domain.FlagGood,
	})

	e := New(nil)
	for _, format := range []string{FormatCFJSON, FormatCSV} {
		_, err := e.Export(ds, format)
		assert.ErrorIs(t, err, errors.ErrAttributeMappingGap, "format %s", format)
	}
}

func TestOutputName(t *testing.T) {
	name, err := OutputName("/data/raw/cast.cnv", FormatCFJSON)
	require.NoError(t, err)
	assert.Equal(t, "cast.cf.json", name)

	name, err = OutputName("mooring.msp", FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "mooring.cf.csv", name)
}

func TestReimportCFJSONLengthMismatch(t *testing.T) {
	doc := `{"variables":[{"name":"x","times":["2021-03-15T08:00:00Z"],"values":[1,2],"flags":["good"]}]}`
	_, err := New(nil).Reimport([]byte(doc), FormatCFJSON)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lengths disagree")
}

func TestReimportCFJSONDiscardedLengthMismatch(t *testing.T) {
	doc := `{"variables":[{"name":"x","times":[],"values":[],"flags":[],` +
		`"discarded_times":["2021-03-15T08:00:00Z","2021-03-15T08:00:01Z"],"discarded_values":[1]}]}`
	_, err := New(nil).Reimport([]byte(doc), FormatCFJSON)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lengths disagree")
}

func TestReimportCSVRejectsHeaderlessBody(t *testing.T) {
	// A well-formed 4-column body without the header row must fail, not
	// silently swallow its first sample.
	data := "2021-03-15T08:00:00Z,sea_water_temperature,8.31,good\n"
	_, err := New(nil).Reimport([]byte(data), FormatCSV)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header")
}

func TestFillValueOutsideMappedRanges(t *testing.T) {
	// The NaN fill encoding relies on -9999 never being a plausible
	// reading of any mapped variable.
	for canonical, attr := range exportMapping {
		assert.True(t, fillValue < attr.ValidMin || fillValue > attr.ValidMax,
			"fill value %v lies inside the valid range of %s", fillValue, canonical)
	}
}

func TestReimportCSVRejectsUnknownFlag(t *testing.T) {
	data := strings.Join([]string{
		"time,variable,value,flag",
		"2021-03-15T08:00:00Z,sea_water_temperature,8.31,suspicious",
	}, "\n")
	_, err := New(nil).Reimport([]byte(data), FormatCSV)
	assert.Error(t, err)
}
