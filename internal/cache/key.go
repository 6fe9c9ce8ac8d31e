package cache

import "github.com/fsidx/engine/internal/varint"

// Kind distinguishes the four caches the readers require.
type Kind int

const (
	L2PHeader Kind = iota
	L2PPage
	P2LHeader
	P2LPage
)

func (k Kind) String() string {
	switch k {
	case L2PHeader:
		return "l2p_header"
	case L2PPage:
		return "l2p_page"
	case P2LHeader:
		return "p2l_header"
	case P2LPage:
		return "p2l_page"
	default:
		return "unknown"
	}
}

// Key identifies one cache entry. Header keys are (base/first revision,
// is_packed); page keys additionally carry the page number.
type Key struct {
	Kind          Kind
	FirstRevision uint64
	IsPacked      bool
	PageNo        uint64
}

// HeaderKey builds a header cache key for either index.
func HeaderKey(kind Kind, firstRevision uint64, isPacked bool) Key {
	return Key{Kind: kind, FirstRevision: firstRevision, IsPacked: isPacked}
}

// PageKey builds a page cache key for either index.
func PageKey(kind Kind, firstRevision uint64, isPacked bool, pageNo uint64) Key {
	return Key{Kind: kind, FirstRevision: firstRevision, IsPacked: isPacked, PageNo: pageNo}
}

// String renders the key through the engine's legacy, printable,
// space-joinable key encoding, so distinct keys are guaranteed distinct
// strings without relying on fmt's formatting of the Kind/bool fields.
func (k Key) String() string {
	packed := int64(0)
	if k.IsPacked {
		packed = 1
	}
	return varint.EncodeKey(int64(k.Kind), int64(k.FirstRevision), packed, int64(k.PageNo))
}
