package l2p

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/fsidx/engine/internal/diskguard"
	"github.com/fsidx/engine/internal/fserrors"
	"github.com/fsidx/engine/internal/metrics"
	"github.com/fsidx/engine/internal/protoindex"
	"github.com/fsidx/engine/internal/spill"
	"github.com/fsidx/engine/internal/varint"
)

type itemEntry struct {
	index         uint64
	offsetPlusOne uint64
}

func lessItemEntry(a, b itemEntry) bool {
	return a.index < b.index
}

// Builder consumes an L2P proto log and produces the final, compact L2P
// index file.
type Builder struct {
	protoPath     string
	outPath       string
	firstRevision uint64
	pageSize      uint64
	tmpDir        string
	logger        *zap.Logger
	metrics       *metrics.Collector
	guard         *diskguard.Guard
}

// NewBuilder constructs a Builder. pageSize is P, the maximum number of
// entries per page. guard may be nil, in which case the spill buffer
// never checks free space before spilling to disk.
func NewBuilder(protoPath, outPath string, firstRevision, pageSize uint64, tmpDir string, logger *zap.Logger, mc *metrics.Collector, guard *diskguard.Guard) *Builder {
	return &Builder{
		protoPath:     protoPath,
		outPath:       outPath,
		firstRevision: firstRevision,
		pageSize:      pageSize,
		tmpDir:        tmpDir,
		logger:        logger,
		metrics:       mc,
		guard:         guard,
	}
}

// Build reads the proto log and writes the final index file, then
// flips it read-only.
func (b *Builder) Build() error {
	start := time.Now()
	r, err := protoindex.OpenL2PProtoReader(b.protoPath)
	if err != nil {
		return err
	}
	defer r.Close()

	spillBuf := spill.New(b.tmpDir, 0).WithGuard(b.guard)
	defer spillBuf.Close()

	var pagesPerRev []uint64
	var pageByteSizes []uint64
	var pageEntryCounts []uint64

	tree := btree.NewG(32, lessItemEntry)
	haveAny := false
	var maxIndex uint64

	flushRevision := func() error {
		pages := uint64(0)
		if haveAny {
			for start := uint64(0); start <= maxIndex; start += b.pageSize {
				count := b.pageSize
				if remaining := maxIndex - start + 1; remaining < count {
					count = remaining
				}
				values := make([]uint64, count)
				for i := uint64(0); i < count; i++ {
					if e, ok := tree.Get(itemEntry{index: start + i}); ok {
						values[i] = e.offsetPlusOne
					}
				}
				body := EncodePage(values)
				if _, err := spillBuf.Write(body); err != nil {
					return err
				}
				pageByteSizes = append(pageByteSizes, uint64(len(body)))
				pageEntryCounts = append(pageEntryCounts, count)
				pages++
				if b.metrics != nil {
					b.metrics.BuilderBytesWritten.WithLabelValues("l2p").Add(float64(len(body)))
				}
			}
		}
		pagesPerRev = append(pagesPerRev, pages)
		if b.metrics != nil {
			b.metrics.BuilderPagesWritten.WithLabelValues("l2p").Add(float64(pages))
		}
		tree = btree.NewG(32, lessItemEntry)
		haveAny = false
		maxIndex = 0
		return nil
	}

	for {
		rec, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if rec.IsEndOfRevision() {
			if err := flushRevision(); err != nil {
				return err
			}
			continue
		}
		tree.ReplaceOrInsert(itemEntry{index: rec.ItemIndex, offsetPlusOne: rec.OffsetPlusOne})
		if !haveAny || rec.ItemIndex > maxIndex {
			maxIndex = rec.ItemIndex
		}
		haveAny = true
	}
	if haveAny {
		if err := flushRevision(); err != nil {
			return err
		}
	}

	if err := b.writeFinal(pagesPerRev, pageByteSizes, pageEntryCounts, spillBuf); err != nil {
		return err
	}

	if b.logger != nil {
		b.logger.Info("l2p index built",
			zap.String("path", b.outPath),
			zap.Uint64("revisions", uint64(len(pagesPerRev))),
			zap.Duration("elapsed", time.Since(start)))
	}
	if b.metrics != nil {
		b.metrics.BuilderDuration.WithLabelValues("l2p").Observe(time.Since(start).Seconds())
	}
	return nil
}

func (b *Builder) writeFinal(pagesPerRev, pageByteSizes, pageEntryCounts []uint64, spillBuf *spill.Buffer) error {
	if err := os.MkdirAll(filepath.Dir(b.outPath), 0755); err != nil {
		return fserrors.Wrap(b.outPath, 0, err)
	}
	tmpPath := b.outPath + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fserrors.Wrap(tmpPath, 0, err)
	}
	w := varint.NewWriter(f, tmpPath)

	totalPages := uint64(len(pageByteSizes))
	if _, err := w.PutUint(b.firstRevision); err != nil {
		f.Close()
		return err
	}
	if _, err := w.PutUint(b.pageSize); err != nil {
		f.Close()
		return err
	}
	if _, err := w.PutUint(uint64(len(pagesPerRev))); err != nil {
		f.Close()
		return err
	}
	if _, err := w.PutUint(totalPages); err != nil {
		f.Close()
		return err
	}
	for _, p := range pagesPerRev {
		if _, err := w.PutUint(p); err != nil {
			f.Close()
			return err
		}
	}
	for i := range pageByteSizes {
		if _, err := w.PutUint(pageByteSizes[i]); err != nil {
			f.Close()
			return err
		}
		if _, err := w.PutUint(pageEntryCounts[i]); err != nil {
			f.Close()
			return err
		}
	}
	if _, err := spillBuf.WriteTo(w); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fserrors.Wrap(tmpPath, 0, err)
	}
	if err := os.Rename(tmpPath, b.outPath); err != nil {
		return fserrors.Wrap(b.outPath, 0, err)
	}
	return os.Chmod(b.outPath, 0444)
}
