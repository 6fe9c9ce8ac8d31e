package p2l

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fsidx/engine/internal/diskguard"
	"github.com/fsidx/engine/internal/fserrors"
	"github.com/fsidx/engine/internal/metrics"
	"github.com/fsidx/engine/internal/protoindex"
	"github.com/fsidx/engine/internal/spill"
	"github.com/fsidx/engine/internal/varint"
)

// Builder consumes a P2L proto log and produces the final, compact P2L
// index file.
type Builder struct {
	protoPath     string
	outPath       string
	firstRevision uint64
	finalRevision uint64 // revision to substitute for protoindex.RevisionInvalid
	pageSize      uint64 // Q
	tmpDir        string
	logger        *zap.Logger
	metrics       *metrics.Collector
	guard         *diskguard.Guard
}

// NewBuilder constructs a Builder. pageSize is Q, the byte size of a
// cluster. guard may be nil, in which case the spill buffer never
// checks free space before spilling to disk.
func NewBuilder(protoPath, outPath string, firstRevision, finalRevision, pageSize uint64, tmpDir string, logger *zap.Logger, mc *metrics.Collector, guard *diskguard.Guard) *Builder {
	return &Builder{
		protoPath:     protoPath,
		outPath:       outPath,
		firstRevision: firstRevision,
		finalRevision: finalRevision,
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
	r, err := protoindex.OpenP2LProtoReader(b.protoPath)
	if err != nil {
		return err
	}
	defer r.Close()

	spillBuf := spill.New(b.tmpDir, 0).WithGuard(b.guard)
	defer spillBuf.Close()

	var pageByteSizes []uint64
	var current []Entry
	lastPageEnd := uint64(0)
	lastEntryEnd := uint64(0)
	pages := 0

	closePage := func() error {
		body := EncodePageBody(b.firstRevision, current)
		if _, err := spillBuf.Write(body); err != nil {
			return err
		}
		pageByteSizes = append(pageByteSizes, uint64(len(body)))
		current = nil
		pages++
		if b.metrics != nil {
			b.metrics.BuilderBytesWritten.WithLabelValues("p2l").Add(float64(len(body)))
		}
		return nil
	}

	addEntry := func(e Entry) error {
		current = append(current, e)
		lastEntryEnd = uint64(e.End())
		for lastEntryEnd-lastPageEnd > b.pageSize {
			if err := closePage(); err != nil {
				return err
			}
			lastPageEnd += b.pageSize
		}
		return nil
	}

	sawAny := false
	for {
		rec, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		sawAny = true
		revision := rec.Revision
		if revision == protoindex.RevisionInvalid {
			revision = b.finalRevision
		}
		if err := addEntry(Entry{
			Offset:     rec.Offset,
			Size:       rec.Size,
			Type:       rec.Type,
			Revision:   revision,
			ItemNumber: rec.ItemNumber,
			Checksum:   rec.Checksum,
		}); err != nil {
			return err
		}
	}

	fileSize := uint64(0)
	if sawAny {
		padSize := alignUp(lastEntryEnd, b.pageSize) - lastEntryEnd
		if padSize > 0 {
			if err := addEntry(Entry{
				Offset:   int64(lastEntryEnd),
				Size:     padSize,
				Type:     0,
				Revision: b.firstRevision,
			}); err != nil {
				return err
			}
		}
		if len(current) > 0 {
			if err := closePage(); err != nil {
				return err
			}
		}
		fileSize = lastEntryEnd
	}

	if b.metrics != nil {
		b.metrics.BuilderPagesWritten.WithLabelValues("p2l").Add(float64(pages))
	}

	if err := b.writeFinal(fileSize, pageByteSizes, spillBuf); err != nil {
		return err
	}

	if b.logger != nil {
		b.logger.Info("p2l index built",
			zap.String("path", b.outPath),
			zap.Uint64("file_size", fileSize),
			zap.Int("pages", pages),
			zap.Duration("elapsed", time.Since(start)))
	}
	if b.metrics != nil {
		b.metrics.BuilderDuration.WithLabelValues("p2l").Observe(time.Since(start).Seconds())
	}
	return nil
}

func alignUp(v, block uint64) uint64 {
	if block == 0 || v%block == 0 {
		return v
	}
	return v - v%block + block
}

func (b *Builder) writeFinal(fileSize uint64, pageByteSizes []uint64, spillBuf *spill.Buffer) error {
	if err := os.MkdirAll(filepath.Dir(b.outPath), 0755); err != nil {
		return fserrors.Wrap(b.outPath, 0, err)
	}
	tmpPath := b.outPath + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fserrors.Wrap(tmpPath, 0, err)
	}
	w := varint.NewWriter(f, tmpPath)

	if _, err := w.PutUint(b.firstRevision); err != nil {
		f.Close()
		return err
	}
	if _, err := w.PutUint(fileSize); err != nil {
		f.Close()
		return err
	}
	if _, err := w.PutUint(b.pageSize); err != nil {
		f.Close()
		return err
	}
	if _, err := w.PutUint(uint64(len(pageByteSizes))); err != nil {
		f.Close()
		return err
	}
	for _, sz := range pageByteSizes {
		if _, err := w.PutUint(sz); err != nil {
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
