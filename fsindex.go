// Package fsidx is the public facade of the item-index engine: it
// wires the L2P and P2L builders/readers to a shared set of caches and
// exposes the operations the surrounding filesystem layer calls.
package fsidx

import (
	"os"

	"go.uber.org/zap"

	"github.com/fsidx/engine/internal/cache"
	"github.com/fsidx/engine/internal/diskguard"
	"github.com/fsidx/engine/internal/fsconfig"
	"github.com/fsidx/engine/internal/l2p"
	"github.com/fsidx/engine/internal/metrics"
	"github.com/fsidx/engine/internal/p2l"
	"github.com/fsidx/engine/internal/protoindex"
)

// Index ties together the L2P and P2L engines over one repository's
// worth of index files. It is safe for concurrent use by multiple
// readers; builder calls (Finalize*) assume the single-writer-per
// -repository discipline of spec §5.
type Index struct {
	paths   PathProvider
	cfg     *fsconfig.Config
	logger  *zap.Logger
	metrics *metrics.Collector

	l2pHeaderCache *cache.LRUCache
	l2pPageCache   *cache.LRUCache
	p2lHeaderCache *cache.LRUCache
	p2lPageCache   *cache.LRUCache

	diskGuard *diskguard.Guard
}

// New constructs an Index. logger may be nil, in which case a no-op
// logger is used.
func New(paths PathProvider, cfg *fsconfig.Config, logger *zap.Logger) (*Index, error) {
	if cfg == nil {
		cfg = fsconfig.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var mc *metrics.Collector
	if cfg.Metrics.Enabled {
		mc = metrics.New(cfg.Metrics.Namespace)
	}

	idx := &Index{paths: paths, cfg: cfg, logger: logger, metrics: mc}

	var err error
	if idx.l2pHeaderCache, err = cache.NewLRUCache(cache.L2PHeader, cfg.Cache.L2PHeaderEntries, logger, mc); err != nil {
		return nil, err
	}
	if idx.l2pPageCache, err = cache.NewLRUCache(cache.L2PPage, cfg.Cache.L2PPageEntries, logger, mc); err != nil {
		return nil, err
	}
	if idx.p2lHeaderCache, err = cache.NewLRUCache(cache.P2LHeader, cfg.Cache.P2LHeaderEntries, logger, mc); err != nil {
		return nil, err
	}
	if idx.p2lPageCache, err = cache.NewLRUCache(cache.P2LPage, cfg.Cache.P2LPageEntries, logger, mc); err != nil {
		return nil, err
	}

	if cfg.Index.DiskGuardEnabled {
		guard, err := diskguard.New(diskguard.DefaultConfig(idx.spillDir()), logger)
		if err != nil {
			return nil, err
		}
		idx.diskGuard = guard
	}

	return idx, nil
}

func (idx *Index) spillDir() string {
	if idx.cfg.Index.SpillDir != "" {
		return idx.cfg.Index.SpillDir
	}
	return os.TempDir()
}

// baseRevision maps a revision to the base revision identifying its
// index files: itself when not packed, or the start of its shard when
// packed (spec §3).
func (idx *Index) baseRevision(revision uint64, packed bool) uint64 {
	if !packed {
		return revision
	}
	s := idx.cfg.Index.ShardSize
	if s == 0 {
		return revision
	}
	return revision - revision%s
}

func (idx *Index) l2pReaderFor(revision uint64, packed bool) *l2p.Reader {
	base := idx.baseRevision(revision, packed)
	path := idx.paths.L2PIndexPath(base)
	return l2p.NewReader(path, base, packed, idx.cfg.Index.StreamBlockSize, idx.l2pHeaderCache, idx.l2pPageCache, idx.logger, idx.metrics)
}

func (idx *Index) p2lReaderFor(revision uint64, packed bool) *p2l.Reader {
	base := idx.baseRevision(revision, packed)
	path := idx.paths.P2LIndexPath(base)
	return p2l.NewReader(path, base, packed, idx.cfg.Index.StreamBlockSize, idx.p2lHeaderCache, idx.p2lPageCache, idx.logger, idx.metrics)
}

// ItemOffset implements spec §4.6 item_offset. useLogicalAddressing and
// packedBaseOffset reflect the revision-file-format knowledge that
// lives with the surrounding filesystem layer (out of scope here, per
// spec §1): whether this revision's items are addressed logically
// (through the L2P index) or physically (offset == item index, plus a
// base when packed).
func (idx *Index) ItemOffset(revision uint64, packed, useLogicalAddressing bool, packedBaseOffset uint64, txnID string, itemIndex uint64) (int64, error) {
	if useLogicalAddressing && txnID != "" {
		off, found, err := protoindex.LookupItemOffset(idx.paths.L2PProtoPath(txnID), itemIndex)
		if err != nil {
			return 0, err
		}
		if found {
			return off, nil
		}
		// Fall through to the finalized index: the transaction's proto
		// log may have already been consumed by the builder.
	}
	if useLogicalAddressing {
		return idx.l2pReaderFor(revision, packed).ItemOffset(revision, itemIndex)
	}
	if packed {
		return int64(packedBaseOffset + itemIndex), nil
	}
	return int64(itemIndex), nil
}

// GetMaxIDs implements spec §4.6 get_max_ids for a revision range that
// lies within a single index file (one shard, or one non-packed
// revision). Callers spanning a shard boundary call once per shard.
func (idx *Index) GetMaxIDs(startRev, count uint64, packed bool) ([]uint64, error) {
	return idx.l2pReaderFor(startRev, packed).GetMaxIDs(startRev, count)
}

// P2LIndexLookup implements spec §4.7 p2l_index_lookup.
func (idx *Index) P2LIndexLookup(revision uint64, packed bool, offset uint64) ([]p2l.Entry, error) {
	return idx.p2lReaderFor(revision, packed).IndexLookup(revision, offset)
}

// P2LEntryLookup implements spec §4.7 p2l_entry_lookup.
func (idx *Index) P2LEntryLookup(revision uint64, packed bool, offset uint64) (p2l.Entry, bool, error) {
	return idx.p2lReaderFor(revision, packed).EntryLookup(revision, offset)
}

// P2LGetMaxOffset implements spec §4.7 p2l_get_max_offset.
func (idx *Index) P2LGetMaxOffset(revision uint64, packed bool) (uint64, error) {
	return idx.p2lReaderFor(revision, packed).GetMaxOffset(revision)
}

// FinalizeL2P implements spec §4.4: build the final L2P index for
// baseRevision from the transaction's proto log.
func (idx *Index) FinalizeL2P(baseRevision uint64, txnID string) error {
	protoPath := idx.paths.L2PProtoPath(txnID)
	outPath := idx.paths.L2PIndexPath(baseRevision)
	b := l2p.NewBuilder(protoPath, outPath, baseRevision, idx.cfg.Index.L2PPageSize, idx.spillDir(), idx.logger, idx.metrics, idx.diskGuard)
	return b.Build()
}

// FinalizeP2L implements spec §4.5: build the final P2L index for
// baseRevision from the transaction's proto log. finalRevision is
// substituted for any proto entry recorded with the invalid-revision
// sentinel.
func (idx *Index) FinalizeP2L(baseRevision, finalRevision uint64, txnID string) error {
	protoPath := idx.paths.P2LProtoPath(txnID)
	outPath := idx.paths.P2LIndexPath(baseRevision)
	b := p2l.NewBuilder(protoPath, outPath, baseRevision, finalRevision, idx.cfg.Index.P2LPageSize, idx.spillDir(), idx.logger, idx.metrics, idx.diskGuard)
	return b.Build()
}

// CreateL2PProtoLog implements spec §4.3: open a fresh L2P proto log
// for a new transaction.
func (idx *Index) CreateL2PProtoLog(txnID string) (*protoindex.L2PWriter, error) {
	return protoindex.CreateL2PWriter(idx.paths.L2PProtoPath(txnID))
}

// CreateP2LProtoLog implements spec §4.3: open a fresh P2L proto log
// for a new transaction.
func (idx *Index) CreateP2LProtoLog(txnID string) (*protoindex.P2LWriter, error) {
	return protoindex.CreateP2LWriter(idx.paths.P2LProtoPath(txnID))
}
