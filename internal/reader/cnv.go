package reader

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ctdkit/internal/errors"
	"ctdkit/pkg/contracts/domain"
)

// cnvEndMarker separates the Sea-Bird header block from the data body.
const cnvEndMarker = "*END*"

var (
	cnvNameRe      = regexp.MustCompile(`^# name (\d+) = ([^:]+):\s*(.*)$`)
	cnvNquanRe     = regexp.MustCompile(`^# nquan = (\d+)\s*$`)
	cnvIntervalRe  = regexp.MustCompile(`^# interval = seconds: ([\d.]+)\s*$`)
	cnvStartTimeRe = regexp.MustCompile(`^# start_time = (.+?)(\s*\[.*\])?\s*$`)
	cnvBadFlagRe   = regexp.MustCompile(`^# bad_flag = (.+?)\s*$`)
	cnvSerialRe    = regexp.MustCompile(`SN\s*=?\s*(\w+)`)
)

// cnvStartTimeLayout is the Sea-Bird header timestamp format, e.g.
// "Jan 01 2021 00:00:00".
const cnvStartTimeLayout = "Jan 02 2006 15:04:05"

// CNVReader parses Sea-Bird CNV files: an ASCII header block of lines
// starting with '*' or '#', terminated by *END*, followed by
// whitespace-separated numeric columns.
type CNVReader struct{}

// NewCNVReader returns a Sea-Bird CNV reader.
func NewCNVReader() *CNVReader {
	return &CNVReader{}
}

// Name implements Reader.
func (r *CNVReader) Name() string { return "cnv" }

// Detect accepts files whose prefix opens with a Sea-Bird comment line.
func (r *CNVReader) Detect(prefix []byte, _ string) bool {
	if !bytes.HasPrefix(prefix, []byte("*")) {
		return false
	}
	return bytes.Contains(prefix, []byte("Sea-Bird")) || bytes.Contains(prefix, []byte("SBE"))
}

type cnvChannel struct {
	index int
	code  string
	label string
}

// Parse implements Reader.
func (r *CNVReader) Parse(path string) (*domain.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "CNVReader", "Parse", "open file")
	}
	defer f.Close()

	checksum, err := checksumFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "CNVReader", "Parse", "checksum source")
	}

	rec := &domain.RawRecord{
		Family:         domain.FamilySeaBirdCNV,
		SourcePath:     path,
		SourceChecksum: checksum,
		Calibration:    make(map[string]string),
	}

	var (
		channels  []cnvChannel
		nquan     = -1
		interval  float64
		startTime time.Time
		hasStart  bool
		badFlag   string
		sawEnd    bool
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, cnvEndMarker) {
			sawEnd = true
			break
		}
		if !strings.HasPrefix(line, "*") && !strings.HasPrefix(line, "#") {
			// Data before *END* means the declared header block is
			// inconsistent with the body.
			return nil, errors.MalformedHeader(path, "data row before *END* marker")
		}
		rec.HeaderLines = append(rec.HeaderLines, line)

		switch {
		case cnvNquanRe.MatchString(line):
			m := cnvNquanRe.FindStringSubmatch(line)
			nquan, _ = strconv.Atoi(m[1])
		case cnvNameRe.MatchString(line):
			m := cnvNameRe.FindStringSubmatch(line)
			idx, _ := strconv.Atoi(m[1])
			channels = append(channels, cnvChannel{
				index: idx,
				code:  strings.TrimSpace(m[2]),
				label: strings.TrimSpace(m[3]),
			})
		case cnvIntervalRe.MatchString(line):
			m := cnvIntervalRe.FindStringSubmatch(line)
			interval, _ = strconv.ParseFloat(m[1], 64)
		case cnvStartTimeRe.MatchString(line):
			m := cnvStartTimeRe.FindStringSubmatch(line)
			if t, perr := time.Parse(cnvStartTimeLayout, strings.TrimSpace(m[1])); perr == nil {
				startTime = t.UTC()
				hasStart = true
			}
		case cnvBadFlagRe.MatchString(line):
			m := cnvBadFlagRe.FindStringSubmatch(line)
			badFlag = m[1]
		case strings.HasPrefix(line, "**"):
			parseUserComment(rec, line)
		default:
			if rec.Serial == "" {
				if m := cnvSerialRe.FindStringSubmatch(line); m != nil {
					rec.Serial = m[1]
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "CNVReader", "Parse", "scan header")
	}
	if !sawEnd {
		return nil, errors.MalformedHeader(path, "missing *END* marker")
	}
	if nquan < 0 {
		return nil, errors.MalformedHeader(path, "missing nquan declaration")
	}
	if nquan != len(channels) {
		return nil, errors.MalformedHeader(path,
			fmt.Sprintf("nquan=%d but %d channel names declared", nquan, len(channels)))
	}

	// Elapsed-seconds channel, when present, supplies the time axis.
	timeCol := -1
	for i, ch := range channels {
		if strings.EqualFold(ch.code, "timeS") {
			timeCol = i
			break
		}
	}
	if timeCol >= 0 && !hasStart {
		return nil, errors.MalformedHeader(path, "elapsed-seconds channel without start_time")
	}
	if timeCol < 0 && (!hasStart || interval <= 0) {
		return nil, errors.MalformedHeader(path, "no time basis: need start_time and interval, or a timeS channel")
	}

	badFlagVal := math.NaN()
	if badFlag != "" {
		if v, perr := strconv.ParseFloat(badFlag, 64); perr == nil {
			badFlagVal = v
		}
	}

	rowIdx := 0
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimRight(scanner.Text(), "\r"))
		if line == "" {
			continue
		}
		cols := strings.Fields(line)
		if len(cols) != nquan {
			return nil, errors.MalformedHeader(path,
				fmt.Sprintf("data row %d has %d columns, header declares %d", rowIdx, len(cols), nquan))
		}

		values := make([]float64, nquan)
		for i, col := range cols {
			v, perr := strconv.ParseFloat(col, 64)
			if perr != nil {
				return nil, errors.MalformedHeader(path,
					fmt.Sprintf("data row %d column %d: non-numeric value %q", rowIdx, i, col))
			}
			if !math.IsNaN(badFlagVal) && v == badFlagVal {
				v = math.NaN()
			}
			values[i] = v
		}

		var ts time.Time
		if timeCol >= 0 {
			ts = startTime.Add(time.Duration(values[timeCol] * float64(time.Second)))
		} else {
			ts = startTime.Add(time.Duration(float64(rowIdx) * interval * float64(time.Second)))
		}

		row := domain.RawRow{Time: ts}
		for i, ch := range channels {
			if i == timeCol {
				continue
			}
			row.Fields = append(row.Fields, domain.RawField{Name: ch.code, Value: values[i]})
		}
		rec.Rows = append(rec.Rows, row)
		rowIdx++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "CNVReader", "Parse", "scan data body")
	}

	return rec, nil
}

// parseUserComment extracts deployment metadata from '**' comment
// lines, e.g. "** Deployment: heligoland-2021".
func parseUserComment(rec *domain.RawRecord, line string) {
	body := strings.TrimSpace(strings.TrimPrefix(line, "**"))
	parts := strings.SplitN(body, ":", 2)
	if len(parts) != 2 {
		return
	}
	k, v := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	switch strings.ToLower(k) {
	case "deployment", "station":
		if rec.DeploymentID == "" {
			rec.DeploymentID = v
		}
	default:
		if strings.HasPrefix(strings.ToLower(k), "cal") {
			rec.Calibration[k] = v
		}
	}
}
