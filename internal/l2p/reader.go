package l2p

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/fsidx/engine/internal/cache"
	"github.com/fsidx/engine/internal/fserrors"
	"github.com/fsidx/engine/internal/metrics"
	"github.com/fsidx/engine/internal/serialblob"
	"github.com/fsidx/engine/internal/varint"
)

// Reader answers (revision, item-index) -> offset lookups against one
// L2P index file (one shard, or one non-packed revision).
type Reader struct {
	path          string
	firstRevision uint64
	isPacked      bool
	blockSize     uint64

	headerCache *cache.LRUCache
	pageCache   *cache.LRUCache

	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewReader constructs a Reader over path. firstRevision/isPacked
// identify this file's header/page cache keys.
func NewReader(path string, firstRevision uint64, isPacked bool, blockSize uint64, headerCache, pageCache *cache.LRUCache, logger *zap.Logger, mc *metrics.Collector) *Reader {
	return &Reader{
		path:          path,
		firstRevision: firstRevision,
		isPacked:      isPacked,
		blockSize:     blockSize,
		headerCache:   headerCache,
		pageCache:     pageCache,
		logger:        logger,
		metrics:       mc,
	}
}

func (r *Reader) headerKey() cache.Key {
	return cache.HeaderKey(cache.L2PHeader, r.firstRevision, r.isPacked)
}

func (r *Reader) pageKey(pageNo uint64) cache.Key {
	return cache.PageKey(cache.L2PPage, r.firstRevision, r.isPacked, pageNo)
}

func (r *Reader) loadHeaderBlob() ([]byte, error) {
	return r.headerCache.GetOrFill(r.headerKey(), func() ([]byte, error) {
		h, err := r.readHeaderFromFile()
		if err != nil {
			return nil, err
		}
		return BuildHeaderBlob(h), nil
	})
}

// headerReader guarantees the header blob is cached, then resolves it
// through cache.GetFull rather than a bare Cache.Get, so the header's
// cache entry goes through the same generic get-full contract as any
// other fully decoded cache value.
func (r *Reader) headerReader() (serialblob.Reader, error) {
	blob, err := r.loadHeaderBlob()
	if err != nil {
		return serialblob.Reader{}, err
	}
	if hr, ok := cache.GetFull(r.headerCache, r.headerKey(), identityReader); ok {
		return hr, nil
	}
	return serialblob.NewReader(blob), nil
}

func identityReader(r serialblob.Reader) serialblob.Reader {
	return r
}

func (r *Reader) readHeaderFromFile() (Header, error) {
	s, err := varint.OpenStream(r.path, r.blockSize)
	if err != nil {
		return Header{}, err
	}
	defer s.Close()

	firstRevision, err := s.Get()
	if err != nil {
		return Header{}, err
	}
	pageSize, err := s.Get()
	if err != nil {
		return Header{}, err
	}
	revisionCount, err := s.Get()
	if err != nil {
		return Header{}, err
	}
	totalPageCount, err := s.Get()
	if err != nil {
		return Header{}, err
	}

	pagesPerRev := make([]uint64, revisionCount)
	for i := range pagesPerRev {
		v, err := s.Get()
		if err != nil {
			return Header{}, err
		}
		pagesPerRev[i] = v
	}

	pageTableIndex := make([]uint64, revisionCount+1)
	for i, p := range pagesPerRev {
		pageTableIndex[i+1] = pageTableIndex[i] + p
	}

	pageByteSize := make([]uint64, totalPageCount)
	pageEntryCount := make([]uint64, totalPageCount)
	for i := range pageByteSize {
		sz, err := s.Get()
		if err != nil {
			return Header{}, err
		}
		cnt, err := s.Get()
		if err != nil {
			return Header{}, err
		}
		pageByteSize[i] = sz
		pageEntryCount[i] = cnt
	}

	pageByteOffset := make([]uint64, totalPageCount)
	cursor := uint64(s.Offset())
	for i, sz := range pageByteSize {
		pageByteOffset[i] = cursor
		cursor += sz
	}

	return Header{
		FirstRevision:  firstRevision,
		PageSize:       pageSize,
		RevisionCount:  revisionCount,
		TotalPageCount: totalPageCount,
		PagesPerRev:    pagesPerRev,
		PageTableIndex: pageTableIndex,
		PageByteSize:   pageByteSize,
		PageEntryCount: pageEntryCount,
		PageByteOffset: pageByteOffset,
	}, nil
}

// ItemOffset performs the L2P-lookup algorithm of spec §4.6: resolve
// (revision, itemIndex) to a stored file offset, -1 if unused.
func (r *Reader) ItemOffset(revision, itemIndex uint64) (int64, error) {
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.LookupDuration.WithLabelValues("l2p").Observe(time.Since(start).Seconds())
		}
	}()

	hr, err := r.headerReader()
	if err != nil {
		return 0, err
	}
	firstRevision := hr.Uint64(hdrFirstRevision)
	revisionCount := hr.Uint64(hdrRevisionCount)
	pageSize := hr.Uint64(hdrPageSize)

	pi, err := ComputePageInfo(hr, firstRevision, revisionCount, pageSize, revision, itemIndex)
	if err != nil {
		return 0, err
	}
	if pi.Overflow() {
		return 0, fserrors.Overflow(revision, itemIndex)
	}

	pageBody, err := r.pageCache.GetOrFill(r.pageKey(pi.PageNo), func() ([]byte, error) {
		return r.readPageBytesRange(pi.PageByteOffset, pi.PageByteSize)
	})
	if err != nil {
		return 0, err
	}

	offsets := DecodePage(pageBody, pi.EntryCount)
	result := offsets[pi.PageOffset]

	r.prefetch(hr, revision-firstRevision, pi.PageNo)

	return result, nil
}

func (r *Reader) readPageBytesRange(offset, size uint64) ([]byte, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fserrors.Wrap(r.path, int64(offset), err)
	}
	defer f.Close()
	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, int64(offset)); err != nil {
		return nil, fserrors.Wrap(r.path, int64(offset), err)
	}
	return buf, nil
}

// GetMaxIDs implements spec §4.6 get_max_ids: the item count of each of
// count revisions starting at startRev.
func (r *Reader) GetMaxIDs(startRev, count uint64) ([]uint64, error) {
	hr, err := r.headerReader()
	if err != nil {
		return nil, err
	}
	firstRevision := hr.Uint64(hdrFirstRevision)
	revisionCount := hr.Uint64(hdrRevisionCount)
	pageSize := hr.Uint64(hdrPageSize)

	out := make([]uint64, count)
	for i := uint64(0); i < count; i++ {
		rev := startRev + i
		if rev < firstRevision || rev >= firstRevision+revisionCount {
			return nil, fserrors.Revision(rev, firstRevision, revisionCount)
		}
		relRev := rev - firstRevision
		startPage, endPage := pageRangeForRevision(hr, relRev)
		if endPage == startPage {
			out[i] = 0
			continue
		}
		lastPage := endPage - 1
		_, lastCount := pageTableEntry(hr, lastPage)
		pages := endPage - startPage
		out[i] = (pages-1)*pageSize + lastCount
	}
	return out, nil
}

// prefetch implements the 64KiB-window, shard-local prefetch of spec
// §4.6 step 4: pages are cached before ItemOffset returns.
func (r *Reader) prefetch(hr serialblob.Reader, relRev, fetchedPage uint64) {
	revisionCount := hr.Uint64(hdrRevisionCount)
	blockSize := r.blockSize
	if blockSize == 0 {
		blockSize = 64 * 1024
	}

	curOffset := pageByteOffset(hr, fetchedPage)
	curSize, _ := pageTableEntry(hr, fetchedPage)

	minOff := alignDown(curOffset, blockSize)
	if minOff >= blockSize {
		minOff -= blockSize
	} else {
		minOff = 0
	}
	maxOff := alignUp(curOffset+curSize, blockSize)

	fetched := 0

forward:
	for fr, fp := relRev, fetchedPage+1; fr < revisionCount; fr++ {
		_, endPage := pageRangeForRevision(hr, fr)
		for fp < endPage {
			off := pageByteOffset(hr, fp)
			sz, _ := pageTableEntry(hr, fp)
			if off+sz > maxOff {
				break forward
			}
			if !r.pageCache.HasKey(r.pageKey(fp)) {
				if body, err := r.readPageBytesRange(off, sz); err == nil {
					r.pageCache.Set(r.pageKey(fp), body)
					fetched++
				}
			}
			fp++
		}
		if fr+1 < revisionCount {
			nextStart, _ := pageRangeForRevision(hr, fr+1)
			fp = nextStart
		}
	}

backward:
	for br, bp := relRev, int64(fetchedPage)-1; ; br-- {
		startPage, _ := pageRangeForRevision(hr, br)
		for bp >= int64(startPage) {
			off := pageByteOffset(hr, uint64(bp))
			sz, _ := pageTableEntry(hr, uint64(bp))
			if off < minOff {
				break backward
			}
			if !r.pageCache.HasKey(r.pageKey(uint64(bp))) {
				if body, err := r.readPageBytesRange(off, sz); err == nil {
					r.pageCache.Set(r.pageKey(uint64(bp)), body)
					fetched++
				}
			}
			bp--
		}
		if br == 0 {
			break backward
		}
		prevStart, prevEnd := pageRangeForRevision(hr, br-1)
		if prevEnd == prevStart {
			bp = int64(prevStart) - 1
		} else {
			bp = int64(prevEnd) - 1
		}
	}

	if r.metrics != nil && fetched > 0 {
		r.metrics.PrefetchedPages.WithLabelValues("l2p").Add(float64(fetched))
	}
}

func alignDown(v, block uint64) uint64 {
	return v - v%block
}

func alignUp(v, block uint64) uint64 {
	if v%block == 0 {
		return v
	}
	return v - v%block + block
}
