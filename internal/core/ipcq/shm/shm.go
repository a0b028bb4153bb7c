// Package shm allocates memory regions that can be handed to the peer process
// for payloads too large to inline in a queue envelope.
package shm

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	ErrInvalidSize = errors.New("shm: invalid buffer size")
	ErrTooLarge    = errors.New("shm: buffer exceeds allocator limit")
)

// Buffer is a mapped shared memory region.
type Buffer struct {
	name   string
	data   []byte
	fd     int
	closed atomic.Bool
}

// Name returns the region name.
func (b *Buffer) Name() string { return b.name }

// Bytes returns the mapped bytes. The slice is invalid after Close.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the region size.
func (b *Buffer) Len() int { return len(b.data) }

// FD returns the file descriptor backing the region, or -1 for heap buffers.
func (b *Buffer) FD() int { return b.fd }

// Close unmaps the region. Closing twice is a no-op.
func (b *Buffer) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := release(b)
	b.data = nil
	return err
}

// Allocator hands out buffers up to MaxSize bytes.
type Allocator struct {
	MaxSize int
}

// Alloc allocates a zeroed region of size bytes.
func (a *Allocator) Alloc(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if a.MaxSize > 0 && size > a.MaxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, size, a.MaxSize)
	}
	return allocate("ipcq-"+uuid.NewString(), size)
}
