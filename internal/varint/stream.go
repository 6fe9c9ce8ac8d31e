package varint

import (
	"fmt"
	"io"
	"os"

	"github.com/fsidx/engine/internal/fserrors"
)

// prefetchDepth is K, the maximum number of decoded values held in the
// stream's lookahead buffer at once.
const prefetchDepth = 64

type bufferedValue struct {
	value  uint64
	cumLen int // byte length of values[0..i], inclusive, from bufStart
}

// Stream is a prefetching reader over an append-only file of packed
// integers. It presents get-next-value and seek-to-byte-offset, clipping
// refills to the current block so a random seek does not pull in a
// second block unnecessarily.
type Stream struct {
	file      *os.File
	path      string
	blockSize uint64

	bufStart int64 // file offset the buffered values begin at
	values   []bufferedValue
	cur      int // index of the next value Get() will return
}

// OpenStream opens path and returns a Stream reading from it.
func OpenStream(path string, blockSize uint64) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fserrors.Wrap(path, 0, err)
	}
	return NewStream(f, path, blockSize), nil
}

// NewStream wraps an already-open file.
func NewStream(f *os.File, path string, blockSize uint64) *Stream {
	if blockSize == 0 {
		blockSize = 64 * 1024
	}
	return &Stream{file: f, path: path, blockSize: blockSize}
}

// Close closes the underlying file.
func (s *Stream) Close() error {
	return s.file.Close()
}

// Offset reports the stream's current logical read position.
func (s *Stream) Offset() int64 {
	if s.cur == 0 {
		return s.bufStart
	}
	return s.bufStart + int64(s.values[s.cur-1].cumLen)
}

// Get decodes and returns the next unsigned value in the stream.
func (s *Stream) Get() (uint64, error) {
	if s.cur >= len(s.values) {
		if err := s.refill(); err != nil {
			return 0, err
		}
	}
	if s.cur >= len(s.values) {
		return 0, fserrors.Corruption(s.path, s.Offset(), "unexpected EOF reading packed integer", io.EOF)
	}
	v := s.values[s.cur].value
	s.cur++
	return v, nil
}

// GetSigned decodes and returns the next zig-zag signed value in the
// stream.
func (s *Stream) GetSigned() (int64, error) {
	v, err := s.Get()
	if err != nil {
		return 0, err
	}
	return decodeZigZag(v), nil
}

// Seek repositions the stream to off. If off lands within the currently
// buffered range, the cursor is repositioned in place; otherwise the
// buffer is invalidated and the next refill starts at off.
func (s *Stream) Seek(off int64) error {
	if off < s.bufStart {
		s.invalidate(off)
		return nil
	}
	rel := off - s.bufStart
	for i, bv := range s.values {
		start := 0
		if i > 0 {
			start = s.values[i-1].cumLen
		}
		if int64(start) == rel {
			s.cur = i
			return nil
		}
		_ = bv
	}
	if len(s.values) > 0 && rel == int64(s.values[len(s.values)-1].cumLen) {
		s.cur = len(s.values)
		return nil
	}
	s.invalidate(off)
	return nil
}

func (s *Stream) invalidate(off int64) {
	s.bufStart = off
	s.values = nil
	s.cur = 0
}

// refill reads up to the end of the current block-aligned region (or
// MaxLen bytes, when less than that is left in the block) and decodes
// as many complete values as it can, leaving any incomplete trailing
// bytes to be re-read on the next refill.
func (s *Stream) refill() error {
	start := s.Offset()
	s.bufStart = start
	s.values = nil
	s.cur = 0

	blockEnd := int64((uint64(start)/s.blockSize + 1) * s.blockSize)
	readLen := blockEnd - start
	if readLen <= 0 {
		readLen = int64(s.blockSize)
	}
	if readLen < MaxLen {
		readLen = MaxLen
	}

	buf := make([]byte, readLen)
	n, err := s.file.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return fserrors.Wrap(s.path, start, err)
	}
	buf = buf[:n]
	if n == 0 {
		return nil
	}

	values := make([]bufferedValue, 0, prefetchDepth)
	pos := 0
	cum := 0
	for len(values) < prefetchDepth && pos < len(buf) {
		v, consumed := DecodeUint(buf[pos:])
		if consumed <= 0 {
			break // incomplete trailing value; re-read it next refill
		}
		pos += consumed
		cum += consumed
		values = append(values, bufferedValue{value: v, cumLen: cum})
	}
	s.values = values
	return nil
}

// Writer appends packed integers to an append-only file, used by the
// final index builders.
type Writer struct {
	file *os.File
	path string
	pos  int64
}

// NewWriter wraps an already-open, append-positioned file.
func NewWriter(f *os.File, path string) *Writer {
	return &Writer{file: f, path: path}
}

// PutUint writes a packed unsigned value and returns the number of
// bytes written.
func (w *Writer) PutUint(v uint64) (int, error) {
	buf := PutUint(nil, v)
	n, err := w.file.Write(buf)
	w.pos += int64(n)
	if err != nil {
		return n, fserrors.Wrap(w.path, w.pos, err)
	}
	return n, nil
}

// PutInt writes a packed zig-zag signed value.
func (w *Writer) PutInt(v int64) (int, error) {
	buf := PutInt(nil, v)
	n, err := w.file.Write(buf)
	w.pos += int64(n)
	if err != nil {
		return n, fserrors.Wrap(w.path, w.pos, err)
	}
	return n, nil
}

// Write writes raw bytes (used for concatenating already-encoded page
// bodies from a spill buffer).
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.pos += int64(n)
	if err != nil {
		return n, fserrors.Wrap(w.path, w.pos, fmt.Errorf("short write: %w", err))
	}
	return n, nil
}

// Offset reports the number of bytes written so far.
func (w *Writer) Offset() int64 {
	return w.pos
}
