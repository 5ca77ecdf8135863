package reader

import (
	"bytes"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ctdkit/internal/errors"
	"ctdkit/pkg/contracts/domain"
)

// sqliteMagic is the 16-byte header of every SQLite 3 database file.
var sqliteMagic = []byte("SQLite format 3\x00")

// RSKReader parses RBR legacy .rsk containers: SQLite databases where
// each named channel is a column of the data table, described by the
// channels table.
type RSKReader struct{}

// NewRSKReader returns an RBR RSK container reader.
func NewRSKReader() *RSKReader {
	return &RSKReader{}
}

// Name implements Reader.
func (r *RSKReader) Name() string { return "rsk" }

// Detect accepts SQLite databases. The .rsk extension is a hint only;
// the magic bytes decide.
func (r *RSKReader) Detect(prefix []byte, _ string) bool {
	return bytes.HasPrefix(prefix, sqliteMagic)
}

type rskChannel struct {
	id        int
	shortName string
	longName  string
	units     string
}

// Parse implements Reader.
func (r *RSKReader) Parse(path string) (*domain.RawRecord, error) {
	checksum, err := checksumFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "RSKReader", "Parse", "checksum source")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "RSKReader", "Parse", "open container")
	}
	defer db.Close()

	channels, err := r.loadChannels(db, path)
	if err != nil {
		return nil, err
	}

	rec := &domain.RawRecord{
		Family:         domain.FamilyRBRRSK,
		SourcePath:     path,
		SourceChecksum: checksum,
		Calibration:    make(map[string]string),
	}
	r.loadInstrument(db, rec)
	r.loadCalibration(db, rec)

	cols := make([]string, 0, len(channels)+1)
	cols = append(cols, "tstamp")
	for _, ch := range channels {
		cols = append(cols, fmt.Sprintf("channel%02d", ch.id))
	}

	rows, err := db.Query(fmt.Sprintf("SELECT %s FROM data ORDER BY tstamp", strings.Join(cols, ", ")))
	if err != nil {
		return nil, errors.MalformedHeader(path, fmt.Sprintf("channel table disagrees with data table: %v", err))
	}
	defer rows.Close()

	for rows.Next() {
		var tstamp int64
		values := make([]sql.NullFloat64, len(channels))
		dest := make([]any, 0, len(channels)+1)
		dest = append(dest, &tstamp)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "RSKReader", "Parse", "scan data row")
		}

		row := domain.RawRow{Time: time.UnixMilli(tstamp).UTC()}
		for i, ch := range channels {
			if !values[i].Valid {
				continue
			}
			row.Fields = append(row.Fields, domain.RawField{
				Name:  ch.longName,
				Value: values[i].Float64,
			})
		}
		rec.Rows = append(rec.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "RSKReader", "Parse", "iterate data rows")
	}

	return rec, nil
}

func (r *RSKReader) loadChannels(db *sql.DB, path string) ([]rskChannel, error) {
	rows, err := db.Query("SELECT channelID, shortName, longName, units FROM channels ORDER BY channelID")
	if err != nil {
		return nil, errors.MalformedHeader(path, fmt.Sprintf("missing channels table: %v", err))
	}
	defer rows.Close()

	var channels []rskChannel
	for rows.Next() {
		var ch rskChannel
		if err := rows.Scan(&ch.id, &ch.shortName, &ch.longName, &ch.units); err != nil {
			return nil, errors.Wrap(err, "RSKReader", "loadChannels", "scan channel row")
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "RSKReader", "loadChannels", "iterate channels")
	}
	if len(channels) == 0 {
		return nil, errors.MalformedHeader(path, "channels table is empty")
	}
	return channels, nil
}

// loadInstrument fills the serial number when the container carries an
// instruments table. Older files omit it, so failure is not an error.
func (r *RSKReader) loadInstrument(db *sql.DB, rec *domain.RawRecord) {
	row := db.QueryRow("SELECT serialID FROM instruments LIMIT 1")
	var serial string
	if err := row.Scan(&serial); err == nil {
		rec.Serial = serial
	}
}

// loadCalibration copies calibration coefficients when present.
func (r *RSKReader) loadCalibration(db *sql.DB, rec *domain.RawRecord) {
	rows, err := db.Query("SELECT key, value FROM calibrations")
	if err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return
		}
		rec.Calibration[k] = v
	}
}
