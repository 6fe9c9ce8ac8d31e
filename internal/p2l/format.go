// Package p2l implements the physical-to-logical item index: its final
// file format, the builder that produces one from a proto log, and the
// reader that answers (revision, offset) -> item descriptor lookups.
package p2l

import (
	"github.com/fsidx/engine/internal/serialblob"
	"github.com/fsidx/engine/internal/varint"
)

const (
	hdrFirstRevision  = 0
	hdrFileSize       = 8
	hdrPageSize       = 16
	hdrPageCount      = 24
	hdrPageSizesPtr   = 32
	hdrPageOffsetsPtr = 36
	hdrSize           = 40
)

// Header is the fully decoded P2L header.
type Header struct {
	FirstRevision  uint64
	FileSize       uint64
	PageSize       uint64 // Q
	PageCount      uint64
	PageByteSize   []uint64
	PageByteOffset []uint64
}

// BuildHeaderBlob serializes h for caching.
func BuildHeaderBlob(h Header) []byte {
	b := serialblob.NewBuilder(hdrSize + 16*int(h.PageCount) + 32)
	b.Init(hdrSize)
	b.PutUint64(hdrFirstRevision, h.FirstRevision)
	b.PutUint64(hdrFileSize, h.FileSize)
	b.PutUint64(hdrPageSize, h.PageSize)
	b.PutUint64(hdrPageCount, h.PageCount)

	sizesOff := b.Push(8 * len(h.PageByteSize))
	for i, v := range h.PageByteSize {
		b.PutUint64(sizesOff+uint32(8*i), v)
	}
	b.Pop()
	b.PutPtr(hdrPageSizesPtr, sizesOff)

	offsetsOff := b.Push(8 * len(h.PageByteOffset))
	for i, v := range h.PageByteOffset {
		b.PutUint64(offsetsOff+uint32(8*i), v)
	}
	b.Pop()
	b.PutPtr(hdrPageOffsetsPtr, offsetsOff)

	return b.Get()
}

func arrayAt(r serialblob.Reader, ptrField uint32, n int) []uint64 {
	off, ok := r.Ptr(ptrField)
	if !ok {
		return nil
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = r.Uint64(off + uint32(8*i))
	}
	return out
}

// DecodeHeader fully materializes a Header from its blob.
func DecodeHeader(r serialblob.Reader) Header {
	pageCount := r.Uint64(hdrPageCount)
	return Header{
		FirstRevision:  r.Uint64(hdrFirstRevision),
		FileSize:       r.Uint64(hdrFileSize),
		PageSize:       r.Uint64(hdrPageSize),
		PageCount:      pageCount,
		PageByteSize:   arrayAt(r, hdrPageSizesPtr, int(pageCount)),
		PageByteOffset: arrayAt(r, hdrPageOffsetsPtr, int(pageCount)),
	}
}

func pageByteRange(r serialblob.Reader, pageNo uint64) (offset, size uint64) {
	sizesOff, _ := r.Ptr(hdrPageSizesPtr)
	offsetsOff, _ := r.Ptr(hdrPageOffsetsPtr)
	return r.Uint64(offsetsOff + uint32(8*pageNo)), r.Uint64(sizesOff + uint32(8*pageNo))
}

// Entry is the logical P2L entry the reader returns.
type Entry struct {
	Offset     int64
	Size       uint64
	Type       uint8
	Revision   uint64
	ItemNumber uint64
	Checksum   uint32
}

// End returns the first byte past this entry.
func (e Entry) End() int64 {
	return e.Offset + int64(e.Size)
}

// EncodePageBody encodes one page's entries (first absolute offset,
// then per-entry size/compound-delta/revision-delta/checksum, deltas
// reset at the start of the page) per spec §4.5/§6.
func EncodePageBody(firstRevision uint64, entries []Entry) []byte {
	buf := make([]byte, 0, len(entries)*8)
	if len(entries) == 0 {
		return buf
	}
	buf = varint.PutUint(buf, uint64(entries[0].Offset))

	lastRevision := int64(firstRevision)
	lastCompound := int64(0)
	for _, e := range entries {
		compound := int64(e.ItemNumber)*8 + int64(e.Type)
		buf = varint.PutUint(buf, e.Size)
		buf = varint.PutInt(buf, compound-lastCompound)
		buf = varint.PutInt(buf, int64(e.Revision)-lastRevision)
		buf = varint.PutUint(buf, uint64(e.Checksum))
		lastCompound = compound
		lastRevision = int64(e.Revision)
	}
	return buf
}

// DecodePageBody decodes one page's entries from its body, given the
// revision to reset deltas against. It decodes entries until the body
// is exhausted.
func DecodePageBody(body []byte, firstRevision uint64) []Entry {
	if len(body) == 0 {
		return nil
	}
	pos := 0
	firstOffset, n := varint.DecodeUint(body[pos:])
	pos += n

	var entries []Entry
	offset := int64(firstOffset)
	revision := int64(firstRevision)
	compound := int64(0)
	for pos < len(body) {
		size, n := varint.DecodeUint(body[pos:])
		pos += n
		compoundDelta, n := varint.DecodeInt(body[pos:])
		pos += n
		revDelta, n := varint.DecodeInt(body[pos:])
		pos += n
		checksum, n := varint.DecodeUint(body[pos:])
		pos += n

		compound += compoundDelta
		revision += revDelta

		entries = append(entries, Entry{
			Offset:     offset,
			Size:       size,
			Type:       uint8(compound & 7),
			Revision:   uint64(revision),
			ItemNumber: uint64(compound / 8),
			Checksum:   uint32(checksum),
		})
		offset += int64(size)
	}
	return entries
}
