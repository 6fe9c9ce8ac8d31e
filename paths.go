package fsidx

// PathProvider supplies the on-disk locations of index and proto-index
// files. The engine treats every path as an opaque string (spec §6);
// the surrounding filesystem layer owns naming, directory layout, and
// lifecycle of proto files.
type PathProvider interface {
	// L2PIndexPath returns the final L2P index file for the shard or
	// revision whose base revision is baseRevision.
	L2PIndexPath(baseRevision uint64) string

	// P2LIndexPath returns the final P2L index file for the shard or
	// revision whose base revision is baseRevision.
	P2LIndexPath(baseRevision uint64) string

	// L2PProtoPath returns the L2P proto log for transaction txnID.
	L2PProtoPath(txnID string) string

	// P2LProtoPath returns the P2L proto log for transaction txnID.
	P2LProtoPath(txnID string) string
}
