// Package l2p implements the logical-to-physical item index: its final
// file format, the builder that produces one from a proto log, and the
// reader that answers (revision, item-index) -> offset lookups.
package l2p

import (
	"github.com/fsidx/engine/internal/serialblob"
	"github.com/fsidx/engine/internal/varint"
)

// Header layout within its cached blob. Every field past the four
// scalars is a pointer (blob offset) to a dense array of uint64,
// following design note (a): page-table-shaped data is kept as flat,
// index-addressable arrays rather than a tree of small objects, so a
// partial-getter resolves one revision's or one page's fields with
// fixed-offset arithmetic.
const (
	hdrFirstRevision   = 0
	hdrPageSize        = 8
	hdrRevisionCount   = 16
	hdrTotalPageCount  = 24
	hdrPagesPerRevPtr  = 32
	hdrPageTableIdxPtr = 36
	hdrPageSizesPtr    = 40
	hdrPageCountsPtr   = 44
	hdrPageOffsetsPtr  = 48
	hdrSize            = 52
)

// Header is the fully decoded form of an L2P header. The reader builds
// one while reading the header from the index file and serializes it
// into the cached blob; lookups (ItemOffset, GetMaxIDs) then operate on
// the blob directly via partial-getters. DecodeHeader turns a blob back
// into a Header.
type Header struct {
	FirstRevision  uint64
	PageSize       uint64
	RevisionCount  uint64
	TotalPageCount uint64
	PagesPerRev    []uint64 // len == RevisionCount
	PageTableIndex []uint64 // len == RevisionCount+1, exclusive prefix sum of PagesPerRev
	PageByteSize   []uint64 // len == TotalPageCount
	PageEntryCount []uint64 // len == TotalPageCount
	PageByteOffset []uint64 // len == TotalPageCount, byte offset of each page's body within the file
}

// BuildHeaderBlob serializes h into a self-contained blob via the
// structural serializer, suitable for caching and partial-getting.
func BuildHeaderBlob(h Header) []byte {
	b := serialblob.NewBuilder(hdrSize + 8*int(h.RevisionCount)*2 + 8*int(h.TotalPageCount)*3 + 64)
	b.Init(hdrSize)
	b.PutUint64(hdrFirstRevision, h.FirstRevision)
	b.PutUint64(hdrPageSize, h.PageSize)
	b.PutUint64(hdrRevisionCount, h.RevisionCount)
	b.PutUint64(hdrTotalPageCount, h.TotalPageCount)

	putArray := func(ptrField uint32, values []uint64) {
		off := b.Push(8 * len(values))
		for i, v := range values {
			b.PutUint64(off+uint32(8*i), v)
		}
		b.Pop()
		b.PutPtr(ptrField, off)
	}
	putArray(hdrPagesPerRevPtr, h.PagesPerRev)
	putArray(hdrPageTableIdxPtr, h.PageTableIndex)
	putArray(hdrPageSizesPtr, h.PageByteSize)
	putArray(hdrPageCountsPtr, h.PageEntryCount)
	putArray(hdrPageOffsetsPtr, h.PageByteOffset)

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
	revCount := r.Uint64(hdrRevisionCount)
	pageCount := r.Uint64(hdrTotalPageCount)
	return Header{
		FirstRevision:  r.Uint64(hdrFirstRevision),
		PageSize:       r.Uint64(hdrPageSize),
		RevisionCount:  revCount,
		TotalPageCount: pageCount,
		PagesPerRev:    arrayAt(r, hdrPagesPerRevPtr, int(revCount)),
		PageTableIndex: arrayAt(r, hdrPageTableIdxPtr, int(revCount)+1),
		PageByteSize:   arrayAt(r, hdrPageSizesPtr, int(pageCount)),
		PageEntryCount: arrayAt(r, hdrPageCountsPtr, int(pageCount)),
		PageByteOffset: arrayAt(r, hdrPageOffsetsPtr, int(pageCount)),
	}
}

// pageRangeForRevision partial-gets just the [startPage, endPage) range
// for relRev, without touching any other revision's page-table slice.
func pageRangeForRevision(r serialblob.Reader, relRev uint64) (startPage, endPage uint64) {
	off, ok := r.Ptr(hdrPageTableIdxPtr)
	if !ok {
		return 0, 0
	}
	startPage = r.Uint64(off + uint32(8*relRev))
	endPage = r.Uint64(off + uint32(8*(relRev+1)))
	return
}

// pageTableEntry partial-gets one page's (byte size, entry count).
func pageTableEntry(r serialblob.Reader, pageNo uint64) (size, count uint64) {
	sizesOff, _ := r.Ptr(hdrPageSizesPtr)
	countsOff, _ := r.Ptr(hdrPageCountsPtr)
	return r.Uint64(sizesOff + uint32(8*pageNo)), r.Uint64(countsOff + uint32(8*pageNo))
}

// pageByteOffset partial-gets one page's byte offset within the file.
func pageByteOffset(r serialblob.Reader, pageNo uint64) uint64 {
	off, _ := r.Ptr(hdrPageOffsetsPtr)
	return r.Uint64(off + uint32(8*pageNo))
}

// DecodePage decodes one page body into its offsets array (already the
// caller-facing convention: O_i, with -1 for unused).
func DecodePage(body []byte, entryCount uint64) []int64 {
	offsets := make([]int64, entryCount)
	last := int64(0)
	pos := 0
	for i := uint64(0); i < entryCount; i++ {
		delta, n := varint.DecodeInt(body[pos:])
		pos += n
		last += delta
		offsets[i] = last - 1
	}
	return offsets
}

// EncodePage encodes a page's worth of (offset+1) values, storedValues,
// already zero-filled for unused slots, into a signed-delta varint
// body.
func EncodePage(storedValues []uint64) []byte {
	buf := make([]byte, 0, len(storedValues)*2)
	last := int64(0)
	for _, v := range storedValues {
		delta := int64(v) - last
		buf = varint.PutInt(buf, delta)
		last = int64(v)
	}
	return buf
}
