package domain

import (
	"time"
)

// InstrumentFamily identifies the family of instrument a raw file came from.
type InstrumentFamily string

const (
	FamilySeaBirdCNV InstrumentFamily = "seabird_cnv"
	FamilyMSPBinary  InstrumentFamily = "msp_binary"
	FamilyRBRRSK     InstrumentFamily = "rbr_rsk"
	FamilyXLSXLog    InstrumentFamily = "xlsx_log"
)

// RawField is one native field of a raw instrument row, in the
// instrument's own naming and units.
type RawField struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Text  string  `json:"text,omitempty"`
}

// RawRow is one scan of the instrument: a timestamp plus the ordered
// native fields recorded at that instant. The timestamp is already
// converted to UTC by the reader; sub-second precision is preserved.
type RawRow struct {
	Time   time.Time  `json:"time"`
	Fields []RawField `json:"fields"`
}

// RawRecord is the unprocessed output of a single format reader: the
// ordered rows of one instrument file plus the header metadata the file
// declared about itself. It is owned by the reader that produced it and
// handed to the normalizer by value; nothing retains it afterwards.
type RawRecord struct {
	Family         InstrumentFamily  `json:"family" validate:"required"`
	SourcePath     string            `json:"source_path" validate:"required"`
	SourceChecksum string            `json:"source_checksum"`
	Serial         string            `json:"serial,omitempty"`
	DeploymentID   string            `json:"deployment_id,omitempty"`
	Calibration    map[string]string `json:"calibration,omitempty"`
	HeaderLines    []string          `json:"header_lines,omitempty"`
	Rows           []RawRow          `json:"rows"`
}

// FieldNames returns the distinct native field names seen across all
// rows, in first-seen order.
func (r *RawRecord) FieldNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, row := range r.Rows {
		for _, f := range row.Fields {
			if !seen[f.Name] {
				seen[f.Name] = true
				names = append(names, f.Name)
			}
		}
	}
	return names
}
