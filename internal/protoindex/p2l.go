package protoindex

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/fsidx/engine/internal/fserrors"
)

// RevisionInvalid marks a P2L proto entry written by a transaction that
// did not yet know its target revision; the P2L builder rewrites it to
// the finalized revision before emitting the final index.
const RevisionInvalid = ^uint64(0)

// P2LRecordSize is the on-disk size of one P2L proto record (37
// meaningful bytes, padded to a round size).
const P2LRecordSize = 40

// P2LRecord is the logical P2L entry, stored verbatim in the proto log.
type P2LRecord struct {
	Offset     int64
	Size       uint64
	Type       uint8 // 0..7
	Revision   uint64
	ItemNumber uint64
	Checksum   uint32
}

// End returns the first byte past this entry.
func (r P2LRecord) End() int64 {
	return r.Offset + int64(r.Size)
}

// Compound packs ItemNumber and Type the way final pages encode them:
// number*8 + type.
func (r P2LRecord) Compound() int64 {
	return int64(r.ItemNumber)*8 + int64(r.Type)
}

// P2LWriter appends fixed P2L proto records during a transaction.
type P2LWriter struct {
	file *os.File
	path string
}

// CreateP2LWriter creates (or truncates) the proto log at path.
func CreateP2LWriter(path string) (*P2LWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fserrors.Wrap(path, 0, err)
	}
	return &P2LWriter{file: f, path: path}, nil
}

// Append writes one P2L entry.
func (w *P2LWriter) Append(r P2LRecord) error {
	var buf [P2LRecordSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(r.Offset))
	binary.LittleEndian.PutUint64(buf[8:16], r.Size)
	buf[16] = r.Type
	binary.LittleEndian.PutUint64(buf[17:25], r.Revision)
	binary.LittleEndian.PutUint64(buf[25:33], r.ItemNumber)
	binary.LittleEndian.PutUint32(buf[33:37], r.Checksum)
	if _, err := w.file.Write(buf[:]); err != nil {
		return fserrors.Wrap(w.path, 0, err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *P2LWriter) Close() error {
	return w.file.Close()
}

// P2LProtoReader streams fixed records back out of a P2L proto log, in
// the order they were appended (which is offset order by construction:
// the proto writer is only ever fed entries as their bytes are
// produced).
type P2LProtoReader struct {
	file *os.File
	path string
}

// OpenP2LProtoReader opens the proto log at path for sequential
// reading.
func OpenP2LProtoReader(path string) (*P2LProtoReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fserrors.Wrap(path, 0, err)
	}
	return &P2LProtoReader{file: f, path: path}, nil
}

// Next returns the next record, or io.EOF when the log is exhausted.
func (r *P2LProtoReader) Next() (P2LRecord, error) {
	var buf [P2LRecordSize]byte
	if _, err := io.ReadFull(r.file, buf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return P2LRecord{}, io.EOF
		}
		return P2LRecord{}, fserrors.Corruption(r.path, 0, "truncated P2L proto record", err)
	}
	return P2LRecord{
		Offset:     int64(binary.LittleEndian.Uint64(buf[0:8])),
		Size:       binary.LittleEndian.Uint64(buf[8:16]),
		Type:       buf[16],
		Revision:   binary.LittleEndian.Uint64(buf[17:25]),
		ItemNumber: binary.LittleEndian.Uint64(buf[25:33]),
		Checksum:   binary.LittleEndian.Uint32(buf[33:37]),
	}, nil
}

// Close closes the underlying file.
func (r *P2LProtoReader) Close() error {
	return r.file.Close()
}
