package reader

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"ctdkit/internal/errors"
	"ctdkit/pkg/contracts/domain"
)

// mspMagic is the first header line of a moored-sensor-package binary
// log. The text header is newline-delimited "KEY: value" pairs and ends
// at the first blank line; everything after is fixed-width big-endian
// records of one uint64 epoch-millisecond timestamp followed by one
// float32 per declared channel.
const mspMagic = "MSPBIN1"

// MSPReader parses moored sensor package binary logs.
type MSPReader struct{}

// NewMSPReader returns a moored-sensor-package binary reader.
func NewMSPReader() *MSPReader {
	return &MSPReader{}
}

// Name implements Reader.
func (r *MSPReader) Name() string { return "msp" }

// Detect accepts files whose prefix opens with the MSPBIN1 magic line.
func (r *MSPReader) Detect(prefix []byte, _ string) bool {
	return bytes.HasPrefix(prefix, []byte(mspMagic+"\n")) || bytes.HasPrefix(prefix, []byte(mspMagic+"\r\n"))
}

// Parse implements Reader.
func (r *MSPReader) Parse(path string) (*domain.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "MSPReader", "Parse", "open file")
	}
	defer f.Close()

	checksum, err := checksumFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "MSPReader", "Parse", "checksum source")
	}

	rec := &domain.RawRecord{
		Family:         domain.FamilyMSPBinary,
		SourcePath:     path,
		SourceChecksum: checksum,
		Calibration:    make(map[string]string),
	}

	br := bufio.NewReader(f)
	var (
		channels []string
		units    []string
		offset   int64
		sawMagic bool
	)

	for {
		line, rerr := br.ReadString('\n')
		offset += int64(len(line))
		if rerr == io.EOF && line == "" {
			return nil, errors.MalformedHeader(path, "header not terminated by blank line")
		}
		if rerr != nil && rerr != io.EOF {
			return nil, errors.Wrap(rerr, "MSPReader", "Parse", "read header")
		}
		line = strings.TrimRight(line, "\r\n")

		if !sawMagic {
			if line != mspMagic {
				return nil, errors.MalformedHeader(path, "missing MSPBIN1 magic line")
			}
			sawMagic = true
			rec.HeaderLines = append(rec.HeaderLines, line)
			continue
		}
		if line == "" {
			break
		}
		rec.HeaderLines = append(rec.HeaderLines, line)

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return nil, errors.MalformedHeader(path, fmt.Sprintf("header line %q is not KEY: value", line))
		}
		key, val := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		switch strings.ToUpper(key) {
		case "SERIAL":
			rec.Serial = val
		case "DEPLOYMENT":
			rec.DeploymentID = val
		case "CHANNELS":
			channels = splitList(val)
		case "UNITS":
			units = splitList(val)
		default:
			if strings.HasPrefix(strings.ToUpper(key), "CAL.") {
				rec.Calibration[strings.TrimPrefix(key, "CAL.")] = val
			}
		}
	}

	if len(channels) == 0 {
		return nil, errors.MalformedHeader(path, "no CHANNELS declaration in header")
	}
	if len(units) > 0 && len(units) != len(channels) {
		return nil, errors.MalformedHeader(path,
			fmt.Sprintf("UNITS declares %d entries for %d channels", len(units), len(channels)))
	}

	// One record: uint64 epoch ms + float32 per channel, big-endian.
	recordSize := 8 + 4*len(channels)
	buf := make([]byte, recordSize)
	for {
		n, rerr := io.ReadFull(br, buf)
		if rerr == io.EOF {
			break
		}
		if rerr == io.ErrUnexpectedEOF {
			return nil, errors.TruncatedRecord(path, offset+int64(n))
		}
		if rerr != nil {
			return nil, errors.Wrap(rerr, "MSPReader", "Parse", "read record")
		}

		ms := binary.BigEndian.Uint64(buf[:8])
		row := domain.RawRow{Time: time.UnixMilli(int64(ms)).UTC()}
		for i, ch := range channels {
			bits := binary.BigEndian.Uint32(buf[8+4*i : 12+4*i])
			row.Fields = append(row.Fields, domain.RawField{
				Name:  ch,
				Value: float64(math.Float32frombits(bits)),
			})
		}
		rec.Rows = append(rec.Rows, row)
		offset += int64(recordSize)
	}

	return rec, nil
}

// splitList parses a comma-separated header value, dropping empties.
func splitList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
