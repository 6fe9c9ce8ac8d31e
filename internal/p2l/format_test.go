package p2l

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fsidx/engine/internal/serialblob"
)

func TestEncodeDecodePageBodyRoundTrip(t *testing.T) {
	entries := []Entry{
		{Offset: 0, Size: 10, Type: 1, Revision: 5, ItemNumber: 1, Checksum: 0x111},
		{Offset: 10, Size: 20, Type: 2, Revision: 5, ItemNumber: 2, Checksum: 0x222},
		{Offset: 30, Size: 5, Type: 0, Revision: 6, ItemNumber: 3, Checksum: 0x333},
	}
	body := EncodePageBody(5, entries)
	got := DecodePageBody(body, 5)
	assert.Equal(t, entries, got)
}

func TestEncodeDecodePageBodyEmpty(t *testing.T) {
	body := EncodePageBody(5, nil)
	assert.Empty(t, body)
	assert.Nil(t, DecodePageBody(body, 5))
}

func TestEntryEnd(t *testing.T) {
	e := Entry{Offset: 100, Size: 40}
	assert.Equal(t, int64(140), e.End())
}

func TestBuildHeaderBlobAndDecodeHeaderRoundTrip(t *testing.T) {
	h := Header{
		FirstRevision:  3,
		FileSize:       1000,
		PageSize:       64,
		PageCount:      2,
		PageByteSize:   []uint64{30, 40},
		PageByteOffset: []uint64{40, 70},
	}
	blob := BuildHeaderBlob(h)
	got := DecodeHeader(serialblob.NewReader(blob))
	assert.Equal(t, h, got)
}

func TestPageByteRangePartialGetter(t *testing.T) {
	h := Header{
		FirstRevision:  0,
		FileSize:       1000,
		PageSize:       64,
		PageCount:      2,
		PageByteSize:   []uint64{30, 40},
		PageByteOffset: []uint64{40, 70},
	}
	r := serialblob.NewReader(BuildHeaderBlob(h))
	off, size := pageByteRange(r, 1)
	assert.Equal(t, uint64(70), off)
	assert.Equal(t, uint64(40), size)
}
