package reader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"ctdkit/internal/errors"
	"ctdkit/pkg/contracts/domain"
)

// sniffLen is the fixed prefix size Detect may inspect. Detection never
// reads the full file.
const sniffLen = 512

// Reader parses one instrument family's raw files.
type Reader interface {
	// Name identifies the reader in logs and errors.
	Name() string
	// Detect reports whether this reader can parse a file, judging only
	// from the sniffed prefix. The path is passed as an extension hint
	// and must not be opened.
	Detect(prefix []byte, path string) bool
	// Parse reads the whole file into a RawRecord.
	Parse(path string) (*domain.RawRecord, error)
}

// Dispatcher tries readers in a fixed priority order.
type Dispatcher struct {
	readers []Reader
	logger  *slog.Logger
}

// NewDispatcher returns a dispatcher over the default reader set, in
// priority order.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		readers: []Reader{
			NewCNVReader(),
			NewMSPReader(),
			NewRSKReader(),
			NewXLSXReader(),
		},
		logger: logger,
	}
}

// Detect returns the first reader whose Detect accepts the file, or an
// UNRECOGNIZED_FORMAT error when none does.
func (d *Dispatcher) Detect(path string) (Reader, error) {
	prefix, err := sniff(path)
	if err != nil {
		return nil, errors.Wrap(err, "dispatcher", "Detect", "read file prefix")
	}
	for _, r := range d.readers {
		if r.Detect(prefix, path) {
			d.logger.Debug("format detected",
				slog.String("path", path),
				slog.String("reader", r.Name()))
			return r, nil
		}
	}
	return nil, errors.UnrecognizedFormat(path)
}

// Read detects the format and parses the file in one step.
func (d *Dispatcher) Read(path string) (*domain.RawRecord, error) {
	r, err := d.Detect(path)
	if err != nil {
		return nil, err
	}
	rec, err := r.Parse(path)
	if err != nil {
		return nil, err
	}
	d.logger.Info("file parsed",
		slog.String("path", path),
		slog.String("reader", r.Name()),
		slog.Int("rows", len(rec.Rows)))
	return rec, nil
}

// sniff reads at most sniffLen bytes from the start of the file.
func sniff(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// checksumFile computes the SHA-256 checksum of the source file,
// recorded in the dataset's provenance metadata.
func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
