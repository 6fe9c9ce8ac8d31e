package p2l

import (
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fsidx/engine/internal/cache"
	"github.com/fsidx/engine/internal/fserrors"
	"github.com/fsidx/engine/internal/metrics"
	"github.com/fsidx/engine/internal/serialblob"
	"github.com/fsidx/engine/internal/varint"
)

// Reader answers (revision, offset) -> item descriptor lookups against
// one P2L index file.
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

// NewReader constructs a Reader over path.
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
	return cache.HeaderKey(cache.P2LHeader, r.firstRevision, r.isPacked)
}

func (r *Reader) pageKey(pageNo uint64) cache.Key {
	return cache.PageKey(cache.P2LPage, r.firstRevision, r.isPacked, pageNo)
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
// through cache.GetFull rather than a bare Cache.Get.
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
	fileSize, err := s.Get()
	if err != nil {
		return Header{}, err
	}
	pageSize, err := s.Get()
	if err != nil {
		return Header{}, err
	}
	pageCount, err := s.Get()
	if err != nil {
		return Header{}, err
	}

	pageByteSize := make([]uint64, pageCount)
	for i := range pageByteSize {
		v, err := s.Get()
		if err != nil {
			return Header{}, err
		}
		pageByteSize[i] = v
	}

	pageByteOffset := make([]uint64, pageCount)
	cursor := uint64(s.Offset())
	for i, sz := range pageByteSize {
		pageByteOffset[i] = cursor
		cursor += sz
	}

	return Header{
		FirstRevision:  firstRevision,
		FileSize:       fileSize,
		PageSize:       pageSize,
		PageCount:      pageCount,
		PageByteSize:   pageByteSize,
		PageByteOffset: pageByteOffset,
	}, nil
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

func (r *Reader) loadPage(hr serialblob.Reader, pageNo uint64) ([]Entry, error) {
	off, size := pageByteRange(hr, pageNo)
	body, err := r.pageCache.GetOrFill(r.pageKey(pageNo), func() ([]byte, error) {
		return r.readPageBytesRange(off, size)
	})
	if err != nil {
		return nil, err
	}
	return DecodePageBody(body, hr.Uint64(hdrFirstRevision)), nil
}

// IndexLookup implements spec §4.7 p2l_index_lookup: the entries
// covering the cluster containing offset, including — if the page's
// own entries do not reach the cluster boundary — the first entry of
// the following page, which carries the straddling item.
func (r *Reader) IndexLookup(revision, offset uint64) ([]Entry, error) {
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.LookupDuration.WithLabelValues("p2l").Observe(time.Since(start).Seconds())
		}
	}()

	hr, err := r.headerReader()
	if err != nil {
		return nil, err
	}
	pageSize := hr.Uint64(hdrPageSize)
	pageCount := hr.Uint64(hdrPageCount)

	pageNo := offset / pageSize
	if pageNo >= pageCount {
		return nil, fserrors.Overflow(revision, offset)
	}

	entries, err := r.loadPage(hr, pageNo)
	if err != nil {
		return nil, err
	}

	clusterEnd := (pageNo + 1) * pageSize
	reachesBoundary := len(entries) > 0 && uint64(entries[len(entries)-1].End()) >= clusterEnd
	if !reachesBoundary && pageNo+1 < pageCount {
		next, err := r.loadPage(hr, pageNo+1)
		if err == nil && len(next) > 0 {
			entries = append(entries, next[0])
		}
	}

	r.prefetch(hr, pageNo)
	return entries, nil
}

// EntryLookup implements spec §4.7 p2l_entry_lookup: the entry that
// starts exactly at offset, if any.
func (r *Reader) EntryLookup(revision, offset uint64) (Entry, bool, error) {
	entries, err := r.IndexLookup(revision, offset)
	if err != nil {
		return Entry{}, false, err
	}
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Offset >= int64(offset) })
	if i < len(entries) && entries[i].Offset == int64(offset) {
		return entries[i], true, nil
	}
	return Entry{}, false, nil
}

// GetMaxOffset implements spec §4.7 p2l_get_max_offset: the file size
// covered by this index, read from the header without decoding any
// page.
func (r *Reader) GetMaxOffset(revision uint64) (uint64, error) {
	if _, err := r.loadHeaderBlob(); err != nil {
		return 0, err
	}
	fileSize, _ := cache.GetPartial(r.headerCache, r.headerKey(), func(hr serialblob.Reader) uint64 {
		return hr.Uint64(hdrFileSize)
	})
	return fileSize, nil
}

// prefetch implements the leaking-bucket heuristic of spec §4.7:
// initialized to 4, decremented on each already-cached neighbor
// encountered, incremented (and the page fetched) on each miss, and
// stopping once it reaches zero.
func (r *Reader) prefetch(hr serialblob.Reader, pageNo uint64) {
	pageCount := hr.Uint64(hdrPageCount)
	blockSize := r.blockSize
	if blockSize == 0 {
		blockSize = 64 * 1024
	}

	curOffset, curSize := pageByteRange(hr, pageNo)
	minOff := alignDown(curOffset, blockSize)
	maxOff := alignUpBlock(curOffset+curSize, blockSize)

	fetched := 0

	bucket := 4
	for p := int64(pageNo) - 1; p >= 0 && bucket > 0; p-- {
		off, sz := pageByteRange(hr, uint64(p))
		if off+sz <= minOff {
			break
		}
		if r.pageCache.HasKey(r.pageKey(uint64(p))) {
			bucket--
			continue
		}
		if body, err := r.readPageBytesRange(off, sz); err == nil {
			r.pageCache.Set(r.pageKey(uint64(p)), body)
			fetched++
		}
		bucket++
	}

	bucket = 4
	for p := pageNo + 1; p < pageCount && bucket > 0; p++ {
		off, sz := pageByteRange(hr, p)
		if off >= maxOff {
			break
		}
		if r.pageCache.HasKey(r.pageKey(p)) {
			bucket--
			continue
		}
		if body, err := r.readPageBytesRange(off, sz); err == nil {
			r.pageCache.Set(r.pageKey(p), body)
			fetched++
		}
		bucket++
	}

	if r.metrics != nil && fetched > 0 {
		r.metrics.PrefetchedPages.WithLabelValues("p2l").Add(float64(fetched))
	}
}

func alignDown(v, block uint64) uint64 {
	return v - v%block
}

func alignUpBlock(v, block uint64) uint64 {
	if v%block == 0 {
		return v
	}
	return v - v%block + block
}
