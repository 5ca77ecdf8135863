package reader

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"ctdkit/internal/errors"
	"ctdkit/pkg/contracts/domain"
)

// zipMagic is the local-file-header signature shared by every xlsx
// workbook (they are zip archives).
var zipMagic = []byte{0x50, 0x4b, 0x03, 0x04}

// xlsxTimeLayouts are tried in order when parsing the timestamp column.
var xlsxTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"01-02-06 15:04",
	"1/2/06 15:04",
}

// XLSXReader parses instrument logs that were re-exported to Excel
// workbooks: one sheet with a header row naming a timestamp column and
// one column per channel, units in square brackets.
type XLSXReader struct{}

// NewXLSXReader returns an Excel instrument-log reader.
func NewXLSXReader() *XLSXReader {
	return &XLSXReader{}
}

// Name implements Reader.
func (r *XLSXReader) Name() string { return "xlsx" }

// Detect accepts zip containers with a spreadsheet extension hint. The
// magic bytes are authoritative; the hint only keeps this reader from
// claiming arbitrary zip archives.
func (r *XLSXReader) Detect(prefix []byte, path string) bool {
	if !bytes.HasPrefix(prefix, zipMagic) {
		return false
	}
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xlsm")
}

// Parse implements Reader.
func (r *XLSXReader) Parse(path string) (*domain.RawRecord, error) {
	checksum, err := checksumFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "XLSXReader", "Parse", "checksum source")
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "XLSXReader", "Parse", "open workbook")
	}
	defer f.Close()

	rows, err := r.findDataSheet(f)
	if err != nil {
		return nil, errors.MalformedHeader(path, err.Error())
	}

	headerRow, timeCol, columns := r.mapColumns(rows)
	if headerRow < 0 {
		return nil, errors.MalformedHeader(path, "no header row with a timestamp column found")
	}
	if len(columns) == 0 {
		return nil, errors.MalformedHeader(path, "header row declares no channel columns")
	}

	rec := &domain.RawRecord{
		Family:         domain.FamilyXLSXLog,
		SourcePath:     path,
		SourceChecksum: checksum,
		Calibration:    make(map[string]string),
	}
	r.readProperties(f, rec)

	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) <= timeCol || strings.TrimSpace(row[timeCol]) == "" {
			continue
		}
		ts, perr := parseXLSXTime(strings.TrimSpace(row[timeCol]))
		if perr != nil {
			return nil, errors.MalformedHeader(path,
				fmt.Sprintf("row %d: unparseable timestamp %q", i, row[timeCol]))
		}

		raw := domain.RawRow{Time: ts}
		for _, col := range columns {
			if col.index >= len(row) {
				continue
			}
			cell := strings.TrimSpace(strings.ReplaceAll(row[col.index], ",", ""))
			if cell == "" {
				continue
			}
			v, perr := strconv.ParseFloat(cell, 64)
			if perr != nil {
				continue
			}
			raw.Fields = append(raw.Fields, domain.RawField{Name: col.name, Value: v})
		}
		if len(raw.Fields) > 0 {
			rec.Rows = append(rec.Rows, raw)
		}
	}

	return rec, nil
}

// findDataSheet returns the rows of the first sheet that looks like an
// instrument log (a header row mentioning a timestamp).
func (r *XLSXReader) findDataSheet(f *excelize.File) ([][]string, error) {
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil || len(rows) < 2 {
			continue
		}
		for _, row := range rows[:min(4, len(rows))] {
			text := strings.ToLower(strings.Join(row, " "))
			if strings.Contains(text, "timestamp") || strings.Contains(text, "time") {
				return rows, nil
			}
		}
	}
	return nil, fmt.Errorf("no sheet with a timestamp header found")
}

type xlsxColumn struct {
	index int
	name  string
}

// mapColumns locates the header row and maps channel columns by
// position, stripping bracketed unit suffixes from the header text.
func (r *XLSXReader) mapColumns(rows [][]string) (headerRow, timeCol int, columns []xlsxColumn) {
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		tc := -1
		for j, cell := range row {
			h := strings.ToLower(strings.TrimSpace(cell))
			if h == "timestamp" || h == "time" {
				tc = j
				break
			}
		}
		if tc < 0 {
			continue
		}
		for j, cell := range row {
			if j == tc {
				continue
			}
			name := strings.TrimSpace(cell)
			if idx := strings.Index(name, "["); idx > 0 {
				name = strings.TrimSpace(name[:idx])
			}
			if name != "" {
				columns = append(columns, xlsxColumn{index: j, name: name})
			}
		}
		return i, tc, columns
	}
	return -1, -1, nil
}

// readProperties pulls instrument identity out of the workbook's
// document properties when the exporting software recorded them.
func (r *XLSXReader) readProperties(f *excelize.File, rec *domain.RawRecord) {
	props, err := f.GetDocProps()
	if err != nil || props == nil {
		return
	}
	if props.Subject != "" {
		rec.Serial = props.Subject
	}
	if props.Category != "" {
		rec.DeploymentID = props.Category
	}
}

func parseXLSXTime(s string) (time.Time, error) {
	for _, layout := range xlsxTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("no layout matched %q", s)
}
