// Package protoindex implements the two proto-index append logs kept
// during a transaction: fixed-record files consumed exactly once, by
// the L2P and P2L builders, at revision finalization.
package protoindex

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/fsidx/engine/internal/fserrors"
)

// L2PRecordSize is the on-disk size of one L2P proto record.
const L2PRecordSize = 16

// L2PRecord is one fixed record of the L2P proto log.
type L2PRecord struct {
	OffsetPlusOne uint64
	ItemIndex     uint64
}

// IsEndOfRevision reports whether this record is the zero/zero
// sentinel that terminates one revision's contribution to the log.
func (r L2PRecord) IsEndOfRevision() bool {
	return r.OffsetPlusOne == 0 && r.ItemIndex == 0
}

// L2PWriter appends fixed L2P proto records during a transaction.
type L2PWriter struct {
	file *os.File
	path string
}

// CreateL2PWriter creates (or truncates) the proto log at path.
func CreateL2PWriter(path string) (*L2PWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fserrors.Wrap(path, 0, err)
	}
	return &L2PWriter{file: f, path: path}, nil
}

// Append writes one (offset+1, item-index) record. offsetPlusOne == 0
// means "unused slot"; the caller asserts item_index < UINT_MAX/2.
func (w *L2PWriter) Append(offsetPlusOne, itemIndex uint64) error {
	var buf [L2PRecordSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], offsetPlusOne)
	binary.LittleEndian.PutUint64(buf[8:16], itemIndex)
	if _, err := w.file.Write(buf[:]); err != nil {
		return fserrors.Wrap(w.path, 0, err)
	}
	return nil
}

// EndRevision writes the zero/zero sentinel that closes the current
// revision's contribution and opens the next.
func (w *L2PWriter) EndRevision() error {
	return w.Append(0, 0)
}

// Close flushes and closes the underlying file.
func (w *L2PWriter) Close() error {
	return w.file.Close()
}

// L2PProtoReader streams fixed records back out of an L2P proto log.
type L2PProtoReader struct {
	file *os.File
	path string
}

// OpenL2PProtoReader opens the proto log at path for sequential
// reading.
func OpenL2PProtoReader(path string) (*L2PProtoReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fserrors.Wrap(path, 0, err)
	}
	return &L2PProtoReader{file: f, path: path}, nil
}

// Next returns the next record, or io.EOF when the log is exhausted.
func (r *L2PProtoReader) Next() (L2PRecord, error) {
	var buf [L2PRecordSize]byte
	if _, err := io.ReadFull(r.file, buf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return L2PRecord{}, io.EOF
		}
		return L2PRecord{}, fserrors.Corruption(r.path, 0, "truncated L2P proto record", err)
	}
	return L2PRecord{
		OffsetPlusOne: binary.LittleEndian.Uint64(buf[0:8]),
		ItemIndex:     binary.LittleEndian.Uint64(buf[8:16]),
	}, nil
}

// Close closes the underlying file.
func (r *L2PProtoReader) Close() error {
	return r.file.Close()
}

// LookupItemOffset linearly scans the proto log at path for the most
// recent record matching itemIndex within the currently open revision
// (i.e. before the first end-of-revision sentinel), for the "logical
// addressing, revision still open" read path (spec: item_offset with a
// txn_id). It returns offset-1 (i.e. the caller-facing offset, with -1
// meaning unused) and whether a record was found.
func LookupItemOffset(path string, itemIndex uint64) (int64, bool, error) {
	r, err := OpenL2PProtoReader(path)
	if err != nil {
		return 0, false, err
	}
	defer r.Close()

	found := false
	var offsetPlusOne uint64
	for {
		rec, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, false, err
		}
		if rec.IsEndOfRevision() {
			break
		}
		if rec.ItemIndex == itemIndex {
			offsetPlusOne = rec.OffsetPlusOne
			found = true
		}
	}
	if !found {
		return 0, false, nil
	}
	return int64(offsetPlusOne) - 1, true, nil
}
