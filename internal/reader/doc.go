// Package reader turns raw instrument files into RawRecords. Each
// supported instrument family has its own Reader variant; a dispatcher
// sniffs a fixed-size file prefix and tries the variants in a fixed
// priority order, so format detection is driven by content, with the
// file extension only ever a hint.
//
// # Readers
//
//  1. CNVReader: Sea-Bird ASCII columnar logs with a */# header block
//  2. MSPReader: moored sensor package binary logs (text header plus
//     fixed-width big-endian records)
//  3. RSKReader: RBR legacy containers stored as SQLite databases
//  4. XLSXReader: instrument logs re-exported to Excel workbooks
//
// # Errors
//
// Dispatch fails with UNRECOGNIZED_FORMAT when no reader claims a file.
// Parsing fails with MALFORMED_HEADER when a header disagrees with its
// data body and TRUNCATED_RECORD when end-of-file splits a binary
// record. All are fatal to that file's pipeline run only.
package reader
