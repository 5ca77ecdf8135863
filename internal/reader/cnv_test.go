package reader

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctdkit/internal/errors"
	"ctdkit/pkg/contracts/domain"
)

const cnvFixture = `* Sea-Bird SBE 19plus Data File:
* Temperature SN = 5083
** Deployment: heligoland-2021
** cal CTcor: 3.25e-06
# nquan = 4
# name 0 = timeS: Time, Elapsed [seconds]
# name 1 = tv290C: Temperature [ITS-90, deg C]
# name 2 = c0S/m: Conductivity [S/m]
# name 3 = prdM: Pressure, Strain Gauge [db]
# interval = seconds: 1
# start_time = Jan 01 2021 00:00:00
# bad_flag = -9.990e-29
*END*
0.0 10.00 3.50 100.0
1.0 10.10 3.52 100.1
2.0 10.20 -9.990e-29 100.2
3.0 10.30 3.56 100.3
`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCNVDetect(t *testing.T) {
	r := NewCNVReader()
	assert.True(t, r.Detect([]byte("* Sea-Bird SBE 19plus Data File:\n"), "cast.cnv"))
	assert.False(t, r.Detect([]byte("MSPBIN1\n"), "cast.cnv"))
	assert.False(t, r.Detect([]byte("time,temp\n1,2\n"), "cast.csv"))
}

func TestCNVParse(t *testing.T) {
	path := writeFixture(t, "cast.cnv", cnvFixture)

	rec, err := NewCNVReader().Parse(path)
	require.NoError(t, err)

	assert.Equal(t, domain.FamilySeaBirdCNV, rec.Family)
	assert.Equal(t, "5083", rec.Serial)
	assert.Equal(t, "heligoland-2021", rec.DeploymentID)
	assert.Equal(t, "3.25e-06", rec.Calibration["cal CTcor"])
	assert.NotEmpty(t, rec.SourceChecksum)
	require.Len(t, rec.Rows, 4)

	// timeS supplies the time axis and is consumed, not carried as a field.
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start, rec.Rows[0].Time)
	assert.Equal(t, start.Add(2*time.Second), rec.Rows[2].Time)
	require.Len(t, rec.Rows[0].Fields, 3)
	assert.Equal(t, "tv290C", rec.Rows[0].Fields[0].Name)
	assert.Equal(t, 10.0, rec.Rows[0].Fields[0].Value)

	// Bad-flag values surface as NaN.
	assert.True(t, math.IsNaN(rec.Rows[2].Fields[1].Value))
}

func TestCNVParseIntervalTimeAxis(t *testing.T) {
	fixture := strings.Replace(cnvFixture, "# nquan = 4", "# nquan = 3", 1)
	fixture = strings.Replace(fixture, "# name 0 = timeS: Time, Elapsed [seconds]\n", "", 1)
	fixture = strings.Replace(fixture, "# name 1", "# name 0", 1)
	fixture = strings.Replace(fixture, "# name 2", "# name 1", 1)
	fixture = strings.Replace(fixture, "# name 3", "# name 2", 1)
	fixture = strings.Replace(fixture, "0.0 10.00 3.50 100.0", "10.00 3.50 100.0", 1)
	fixture = strings.Replace(fixture, "1.0 10.10 3.52 100.1", "10.10 3.52 100.1", 1)
	fixture = strings.Replace(fixture, "2.0 10.20 -9.990e-29 100.2", "10.20 -9.990e-29 100.2", 1)
	fixture = strings.Replace(fixture, "3.0 10.30 3.56 100.3", "10.30 3.56 100.3", 1)
	path := writeFixture(t, "cast.cnv", fixture)

	rec, err := NewCNVReader().Parse(path)
	require.NoError(t, err)
	require.Len(t, rec.Rows, 4)
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start.Add(3*time.Second), rec.Rows[3].Time)
}

func TestCNVParseMalformedCases(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		errPart string
	}{
		{
			name:    "nquan disagrees with names",
			mutate:  func(s string) string { return strings.Replace(s, "# nquan = 4", "# nquan = 5", 1) },
			errPart: "nquan",
		},
		{
			name:    "missing end marker",
			mutate:  func(s string) string { return strings.Replace(s, "*END*\n", "", 1) },
			errPart: "*END*",
		},
		{
			name: "row column count mismatch",
			mutate: func(s string) string {
				return strings.Replace(s, "3.0 10.30 3.56 100.3", "3.0 10.30 3.56", 1)
			},
			errPart: "columns",
		},
		{
			name: "non-numeric data",
			mutate: func(s string) string {
				return strings.Replace(s, "3.0 10.30 3.56 100.3", "3.0 ten 3.56 100.3", 1)
			},
			errPart: "non-numeric",
		},
		{
			name: "missing time basis",
			mutate: func(s string) string {
				s = strings.Replace(s, "# interval = seconds: 1\n", "", 1)
				s = strings.Replace(s, "# name 0 = timeS: Time, Elapsed [seconds]\n# name 1", "# name 0 = xmiss: Beam Transmission\n# name 1", 1)
				return s
			},
			errPart: "time basis",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFixture(t, "cast.cnv", tt.mutate(cnvFixture))
			_, err := NewCNVReader().Parse(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrMalformedHeader)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}
