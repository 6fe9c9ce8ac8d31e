package spill

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferStaysInMemoryBelowThreshold(t *testing.T) {
	b := New(t.TempDir(), 1024)
	_, err := b.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Nil(t, b.file)

	var out bytes.Buffer
	n, err := b.WriteTo(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "hello", out.String())
}

func TestBufferSpillsPastThreshold(t *testing.T) {
	b := New(t.TempDir(), 8)
	defer b.Close()

	_, err := b.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.NotNil(t, b.file)

	_, err = b.Write([]byte("abc"))
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = b.WriteTo(&out)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abc", out.String())
}

func TestBufferCloseRemovesTempFile(t *testing.T) {
	b := New(t.TempDir(), 4)
	_, err := b.Write([]byte("12345678"))
	require.NoError(t, err)
	require.NotNil(t, b.file)
	name := b.file.Name()

	require.NoError(t, b.Close())
	_, err = os.Stat(name)
	assert.True(t, os.IsNotExist(err))
}

func TestBufferLenTracksTotalBytes(t *testing.T) {
	b := New(t.TempDir(), 1024)
	_, _ = b.Write([]byte("ab"))
	_, _ = b.Write([]byte("cde"))
	assert.Equal(t, int64(5), b.Len())
}
