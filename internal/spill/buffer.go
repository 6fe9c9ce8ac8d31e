// Package spill implements the streaming append buffer the L2P and P2L
// builders use to accumulate page bodies during a single pass over a
// proto log: an in-memory vector up to a threshold, then a disk-backed
// tail once the in-memory vector would grow past it. Callers see one
// io.Writer-shaped abstraction and never need to know which backing is
// active.
package spill

import (
	"fmt"
	"io"
	"os"

	"github.com/fsidx/engine/internal/diskguard"
)

// DefaultThreshold is the 16 MiB in-memory cap before a Buffer spills
// to disk.
const DefaultThreshold = 16 * 1024 * 1024

// Buffer is a write-once, then-read-once append buffer.
type Buffer struct {
	threshold int
	mem       []byte
	file      *os.File
	dir       string
	total     int64
	guard     *diskguard.Guard
}

// New returns a Buffer that spills to a temp file under dir once more
// than threshold bytes have been written. threshold <= 0 selects
// DefaultThreshold.
func New(dir string, threshold int) *Buffer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Buffer{threshold: threshold, dir: dir}
}

// WithGuard attaches a disk-space guard that spill() consults before
// creating its temp file, so a nearly-full spill directory fails with a
// clear error instead of mid-write.
func (b *Buffer) WithGuard(g *diskguard.Guard) *Buffer {
	b.guard = g
	return b
}

// Write appends p to the buffer, spilling to disk if the in-memory
// vector would otherwise exceed the configured threshold.
func (b *Buffer) Write(p []byte) (int, error) {
	b.total += int64(len(p))

	if b.file != nil {
		n, err := b.file.Write(p)
		if err != nil {
			return n, fmt.Errorf("spill: write to spill file: %w", err)
		}
		return n, nil
	}

	if len(b.mem)+len(p) <= b.threshold {
		b.mem = append(b.mem, p...)
		return len(p), nil
	}

	if err := b.spill(); err != nil {
		return 0, err
	}
	n, err := b.file.Write(p)
	if err != nil {
		return n, fmt.Errorf("spill: write to spill file: %w", err)
	}
	return n, nil
}

func (b *Buffer) spill() error {
	if b.guard != nil {
		if err := b.guard.CheckBeforeWrite(uint64(len(b.mem))); err != nil {
			return fmt.Errorf("spill: %w", err)
		}
	}
	f, err := os.CreateTemp(b.dir, "fsidx-spill-*")
	if err != nil {
		return fmt.Errorf("spill: create temp file: %w", err)
	}
	if len(b.mem) > 0 {
		if _, err := f.Write(b.mem); err != nil {
			f.Close()
			os.Remove(f.Name())
			return fmt.Errorf("spill: flush in-memory vector to disk: %w", err)
		}
	}
	b.mem = nil
	b.file = f
	return nil
}

// Len reports the total number of bytes written so far.
func (b *Buffer) Len() int64 {
	return b.total
}

// WriteTo copies the buffer's full contents to w, in the order they
// were written. It is valid to call exactly once, after all Writes are
// complete.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	if b.file == nil {
		n, err := w.Write(b.mem)
		return int64(n), err
	}
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("spill: seek spill file for readback: %w", err)
	}
	return io.Copy(w, b.file)
}

// Close releases the backing temp file, if one was created.
func (b *Buffer) Close() error {
	if b.file == nil {
		return nil
	}
	name := b.file.Name()
	err := b.file.Close()
	os.Remove(name)
	return err
}
