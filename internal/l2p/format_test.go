package l2p

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsidx/engine/internal/serialblob"
)

func TestEncodeDecodePageRoundTrip(t *testing.T) {
	stored := []uint64{0, 101, 0, 202, 303}
	body := EncodePage(stored)
	offsets := DecodePage(body, uint64(len(stored)))

	want := []int64{-1, 100, -1, 201, 302}
	assert.Equal(t, want, offsets)
}

func TestEncodeDecodePageAllUnused(t *testing.T) {
	stored := make([]uint64, 4)
	body := EncodePage(stored)
	offsets := DecodePage(body, 4)
	for _, o := range offsets {
		assert.Equal(t, int64(-1), o)
	}
}

func TestBuildHeaderBlobAndDecodeHeaderRoundTrip(t *testing.T) {
	h := Header{
		FirstRevision:  10,
		PageSize:       4,
		RevisionCount:  2,
		TotalPageCount: 3,
		PagesPerRev:    []uint64{1, 2},
		PageTableIndex: []uint64{0, 1, 3},
		PageByteSize:   []uint64{5, 7, 9},
		PageEntryCount: []uint64{4, 4, 2},
		PageByteOffset: []uint64{100, 105, 112},
	}
	blob := BuildHeaderBlob(h)
	got := DecodeHeader(serialblob.NewReader(blob))
	assert.Equal(t, h, got)
}

func TestPageRangeAndPageTableEntryPartialGetters(t *testing.T) {
	h := Header{
		FirstRevision:  0,
		PageSize:       4,
		RevisionCount:  2,
		TotalPageCount: 3,
		PagesPerRev:    []uint64{1, 2},
		PageTableIndex: []uint64{0, 1, 3},
		PageByteSize:   []uint64{5, 7, 9},
		PageEntryCount: []uint64{4, 4, 2},
		PageByteOffset: []uint64{100, 105, 112},
	}
	r := serialblob.NewReader(BuildHeaderBlob(h))

	start, end := pageRangeForRevision(r, 1)
	assert.Equal(t, uint64(1), start)
	assert.Equal(t, uint64(3), end)

	size, count := pageTableEntry(r, 2)
	assert.Equal(t, uint64(9), size)
	assert.Equal(t, uint64(2), count)

	assert.Equal(t, uint64(112), pageByteOffset(r, 2))
}

func TestArrayAtMissingPointerReturnsNil(t *testing.T) {
	b := serialblob.NewBuilder(64)
	b.Init(8)
	r := serialblob.NewReader(b.Get())
	require.Nil(t, arrayAt(r, hdrPagesPerRevPtr, 3))
}
