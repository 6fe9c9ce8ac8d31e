package fserrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRevisionErrorIs(t *testing.T) {
	err := Revision(5, 10, 3)
	assert.True(t, Is(err, ItemIndexRevision))
	assert.False(t, Is(err, IO))
}

func TestOverflowErrorDetails(t *testing.T) {
	err := Overflow(7, 12345)
	assert.True(t, Is(err, ItemIndexOverflow))
	assert.Equal(t, uint64(7), err.Details["revision"])
	assert.Equal(t, uint64(12345), err.Details["item_index"])
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk exploded")
	err := Wrap("/tmp/x", 42, cause)
	assert.True(t, Is(err, IO))
	assert.ErrorIs(t, err, cause)
}

func TestCorruptionMessage(t *testing.T) {
	cause := errors.New("bad header")
	err := Corruption("/tmp/idx", 16, "header checksum mismatch", cause)
	assert.True(t, Is(err, ItemIndexCorruption))
	assert.Contains(t, err.Error(), "header checksum mismatch")
}

func TestWithDetailChains(t *testing.T) {
	err := New(Unknown, "something went wrong", nil).WithDetail("key", "value")
	assert.Equal(t, "value", err.Details["key"])
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "ITEM_INDEX_OVERFLOW", ItemIndexOverflow.String())
}
