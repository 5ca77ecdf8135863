package reader

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctdkit/internal/errors"
	"ctdkit/pkg/contracts/domain"
)

// buildMSP assembles a moored-sensor-package binary fixture: header
// lines, blank line, then big-endian records.
func buildMSP(t *testing.T, header []string, records []mspRecord) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, line := range header {
		buf.WriteString(line + "\n")
	}
	buf.WriteString("\n")
	for _, rec := range records {
		require.NoError(t, binary.Write(&buf, binary.BigEndian, uint64(rec.ms)))
		for _, v := range rec.values {
			require.NoError(t, binary.Write(&buf, binary.BigEndian, math.Float32bits(v)))
		}
	}
	return buf.Bytes()
}

type mspRecord struct {
	ms     int64
	values []float32
}

var mspHeader = []string{
	"MSPBIN1",
	"SERIAL: MSP-0042",
	"DEPLOYMENT: fram-strait-07",
	"CAL.ctcor: 1.02e-05",
	"CHANNELS: temp_mC, cond_uScm, pres_dbar",
	"UNITS: mC, uS/cm, dbar",
}

func writeBytes(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestMSPDetect(t *testing.T) {
	r := NewMSPReader()
	assert.True(t, r.Detect([]byte("MSPBIN1\nSERIAL: X\n"), "log.bin"))
	assert.True(t, r.Detect([]byte("MSPBIN1\r\nSERIAL: X\n"), "log.bin"))
	assert.False(t, r.Detect([]byte("* Sea-Bird"), "log.bin"))
	assert.False(t, r.Detect([]byte("MSPBIN1X"), "log.bin"))
}

func TestMSPParse(t *testing.T) {
	base := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	data := buildMSP(t, mspHeader, []mspRecord{
		{ms: base.UnixMilli(), values: []float32{21500, 38000, 104.5}},
		{ms: base.Add(time.Second).UnixMilli(), values: []float32{21512, 38010, 104.6}},
	})
	path := writeBytes(t, "deploy.msp", data)

	rec, err := NewMSPReader().Parse(path)
	require.NoError(t, err)

	assert.Equal(t, domain.FamilyMSPBinary, rec.Family)
	assert.Equal(t, "MSP-0042", rec.Serial)
	assert.Equal(t, "fram-strait-07", rec.DeploymentID)
	assert.Equal(t, "1.02e-05", rec.Calibration["ctcor"])
	require.Len(t, rec.Rows, 2)

	assert.Equal(t, base, rec.Rows[0].Time)
	require.Len(t, rec.Rows[0].Fields, 3)
	assert.Equal(t, "temp_mC", rec.Rows[0].Fields[0].Name)
	assert.InDelta(t, 21500, rec.Rows[0].Fields[0].Value, 1e-6)
	assert.Equal(t, "pres_dbar", rec.Rows[0].Fields[2].Name)
}

func TestMSPParseTruncatedRecord(t *testing.T) {
	base := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	data := buildMSP(t, mspHeader, []mspRecord{
		{ms: base.UnixMilli(), values: []float32{21500, 38000, 104.5}},
	})
	// Cut the second record short mid-way.
	data = append(data, 0x00, 0x01, 0x02)
	path := writeBytes(t, "deploy.msp", data)

	_, err := NewMSPReader().Parse(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTruncatedRecord)
	assert.Contains(t, err.Error(), "offset")
}

func TestMSPParseMalformedHeader(t *testing.T) {
	tests := []struct {
		name   string
		header []string
	}{
		{"missing channels", []string{"MSPBIN1", "SERIAL: X"}},
		{"bad key value line", []string{"MSPBIN1", "JUSTNONSENSE", "CHANNELS: a"}},
		{"units disagree with channels", []string{"MSPBIN1", "CHANNELS: temp_mC, cond_uScm, pres_dbar", "UNITS: mC"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildMSP(t, tt.header, nil)
			path := writeBytes(t, "deploy.msp", data)
			_, err := NewMSPReader().Parse(path)
			assert.ErrorIs(t, err, errors.ErrMalformedHeader)
		})
	}
}

func TestMSPParseUnterminatedHeader(t *testing.T) {
	path := writeBytes(t, "deploy.msp", []byte("MSPBIN1\nCHANNELS: temp_mC"))
	_, err := NewMSPReader().Parse(path)
	assert.ErrorIs(t, err, errors.ErrMalformedHeader)
}
