package l2p

import (
	"github.com/fsidx/engine/internal/fserrors"
	"github.com/fsidx/engine/internal/serialblob"
)

// PageInfo is the derived location of one item within the L2P page
// structure: which page, and where in that page.
type PageInfo struct {
	PageNo         uint64
	PageOffset     uint64 // index within the page; PageSize+1 signals overflow
	EntryCount     uint64
	PageByteSize   uint64
	PageByteOffset uint64
}

// Overflow reports whether the derivation found the item past the
// revision's recorded content.
func (pi PageInfo) Overflow() bool {
	return pi.PageOffset >= pi.EntryCount
}

// ComputePageInfo derives the PageInfo for (revision, itemIndex) by
// partial-getting only the one revision's page-table range from the
// cached header blob — spec §4.6's page-info derivation.
func ComputePageInfo(r serialblob.Reader, firstRevision, revisionCount, pageSize, revision, itemIndex uint64) (PageInfo, error) {
	if revision < firstRevision || revision >= firstRevision+revisionCount {
		return PageInfo{}, fserrors.Revision(revision, firstRevision, revisionCount)
	}
	relRev := revision - firstRevision
	startPage, endPage := pageRangeForRevision(r, relRev)
	numPages := endPage - startPage

	wantPage := itemIndex / pageSize
	pageOffset := itemIndex % pageSize

	if numPages == 0 {
		return PageInfo{PageNo: startPage, PageOffset: pageSize + 1}, nil
	}
	if wantPage >= numPages {
		pageNo := endPage - 1
		size, count := pageTableEntry(r, pageNo)
		return PageInfo{
			PageNo:         pageNo,
			PageOffset:     pageSize + 1,
			EntryCount:     count,
			PageByteSize:   size,
			PageByteOffset: pageByteOffset(r, pageNo),
		}, nil
	}

	pageNo := startPage + wantPage
	size, count := pageTableEntry(r, pageNo)
	return PageInfo{
		PageNo:         pageNo,
		PageOffset:     pageOffset,
		EntryCount:     count,
		PageByteSize:   size,
		PageByteOffset: pageByteOffset(r, pageNo),
	}, nil
}
