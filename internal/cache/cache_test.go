package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsidx/engine/internal/serialblob"
)

func newTestCache(t *testing.T, size int) *LRUCache {
	t.Helper()
	c, err := NewLRUCache(L2PPage, size, nil, nil)
	require.NoError(t, err)
	return c
}

func TestLRUCacheGetSetRoundTrip(t *testing.T) {
	c := newTestCache(t, 4)
	key := PageKey(L2PPage, 0, false, 1)

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Set(key, []byte("hello"))
	v, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), v)
	assert.True(t, c.HasKey(key))
}

func TestLRUCacheEvictsBeyondCapacity(t *testing.T) {
	c := newTestCache(t, 2)
	k1 := PageKey(L2PPage, 0, false, 1)
	k2 := PageKey(L2PPage, 0, false, 2)
	k3 := PageKey(L2PPage, 0, false, 3)

	c.Set(k1, []byte("a"))
	c.Set(k2, []byte("b"))
	c.Set(k3, []byte("c"))

	assert.False(t, c.HasKey(k1))
	assert.True(t, c.HasKey(k3))
}

func TestGetOrFillCallsFillOnceOnMiss(t *testing.T) {
	c := newTestCache(t, 4)
	key := PageKey(L2PPage, 0, false, 1)
	var calls int32

	fill := func() ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("filled"), nil
	}

	v, err := c.GetOrFill(key, fill)
	require.NoError(t, err)
	assert.Equal(t, []byte("filled"), v)

	v2, err := c.GetOrFill(key, fill)
	require.NoError(t, err)
	assert.Equal(t, []byte("filled"), v2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrFillCoalescesConcurrentMisses(t *testing.T) {
	c := newTestCache(t, 4)
	key := PageKey(L2PPage, 0, false, 7)
	var calls int32

	start := make(chan struct{})
	fill := func() ([]byte, error) {
		<-start
		atomic.AddInt32(&calls, 1)
		return []byte("v"), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrFill(key, fill)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, v := range results {
		assert.Equal(t, []byte("v"), v)
	}
}

func TestGetOrFillPropagatesFillError(t *testing.T) {
	c := newTestCache(t, 4)
	key := PageKey(L2PPage, 0, false, 1)
	wantErr := errors.New("boom")

	_, err := c.GetOrFill(key, func() ([]byte, error) { return nil, wantErr })
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, c.HasKey(key))
}

func TestGetPartialAndGetFull(t *testing.T) {
	c := newTestCache(t, 4)
	key := PageKey(L2PPage, 0, false, 1)
	c.Set(key, []byte{9, 0, 0, 0})

	v, ok := GetPartial(c, key, func(r serialblob.Reader) byte { return r.Slice(0, 1)[0] })
	assert.True(t, ok)
	assert.Equal(t, byte(9), v)

	full, ok := GetFull(c, key, func(r serialblob.Reader) []byte { return r.Bytes() })
	assert.True(t, ok)
	assert.Equal(t, []byte{9, 0, 0, 0}, full)
}
