// Package fserrors defines the error taxonomy for the item-index engine.
package fserrors

import (
	"errors"
	"fmt"
)

// Kind identifies the class of failure surfaced by an index operation.
type Kind int

const (
	// Unknown is the zero value and should never be returned.
	Unknown Kind = iota

	// ItemIndexRevision means the requested revision is not covered by
	// the index in hand.
	ItemIndexRevision

	// ItemIndexOverflow means the item-index or offset is past the
	// content recorded for the revision.
	ItemIndexOverflow

	// ItemIndexCorruption means the on-disk stream could not be decoded:
	// varint overflow, truncated record, unexpected EOF mid-record.
	ItemIndexCorruption

	// IO wraps an underlying filesystem error.
	IO
)

func (k Kind) String() string {
	switch k {
	case ItemIndexRevision:
		return "ITEM_INDEX_REVISION"
	case ItemIndexOverflow:
		return "ITEM_INDEX_OVERFLOW"
	case ItemIndexCorruption:
		return "ITEM_INDEX_CORRUPTION"
	case IO:
		return "IO"
	default:
		return "UNKNOWN"
	}
}

// IndexError is the structured error type returned by every fallible
// operation in this module.
type IndexError struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *IndexError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *IndexError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a diagnostic key/value pair and returns the receiver
// for chaining.
func (e *IndexError) WithDetail(key string, value any) *IndexError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func New(kind Kind, message string, cause error) *IndexError {
	return &IndexError{Kind: kind, Message: message, Cause: cause}
}

// Revision reports that revision is not covered by the index spanning
// [firstRevision, firstRevision+revisionCount).
func Revision(revision, firstRevision, revisionCount uint64) *IndexError {
	return New(ItemIndexRevision, "revision not covered by index", nil).
		WithDetail("revision", revision).
		WithDetail("first_revision", firstRevision).
		WithDetail("revision_count", revisionCount)
}

// Overflow reports an item-index or offset past the revision's recorded
// content.
func Overflow(revision, itemIndex uint64) *IndexError {
	return New(ItemIndexOverflow, "item-index past revision content", nil).
		WithDetail("revision", revision).
		WithDetail("item_index", itemIndex)
}

// Corruption reports a decode failure at a specific file and byte offset.
func Corruption(file string, offset int64, message string, cause error) *IndexError {
	return New(ItemIndexCorruption, message, cause).
		WithDetail("file", file).
		WithDetail("offset", offset)
}

// Wrap reports an underlying filesystem error at a specific file and byte
// offset.
func Wrap(file string, offset int64, cause error) *IndexError {
	return New(IO, "filesystem operation failed", cause).
		WithDetail("file", file).
		WithDetail("offset", offset)
}

// Is reports whether err is an *IndexError of the given kind, looking
// through any wrapping.
func Is(err error, kind Kind) bool {
	var ie *IndexError
	if !errors.As(err, &ie) {
		return false
	}
	return ie.Kind == kind
}
