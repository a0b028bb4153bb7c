package ipcq

import (
	"strconv"
	"sync/atomic"
)

// ID identifies one queue for the lifetime of the process.
type ID uint64

// IllegalID marks a queue half that has not been bound to an identifier.
const IllegalID ID = 0

var nextID atomic.Uint64

// NewID returns a fresh process-local queue identifier. The first is 1.
func NewID() ID {
	return ID(nextID.Add(1))
}

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}
