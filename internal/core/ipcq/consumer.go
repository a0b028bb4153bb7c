package ipcq

import (
	"weak"

	"github.com/zeusync/ipcq/internal/core/observability/log"
	"github.com/zeusync/ipcq/pkg/encoding"
)

var (
	_ encoding.Marshaler   = (*Consumer[*Actor])(nil)
	_ encoding.Unmarshaler = (*Consumer[*Actor])(nil)
)

// Consumer is the receiving half of a queue. It keeps bytes that arrived but
// could not be decoded yet and retries them on the next TryRemove.
type Consumer[A Host] struct {
	id    ID
	actor weak.Pointer[Actor]
	bound bool
	buf   []byte
}

func newConsumer[A Host](id ID, actor *Actor) *Consumer[A] {
	c := &Consumer[A]{id: id}
	if actor != nil {
		c.actor = weak.Make(actor)
		c.bound = true
	}
	return c
}

// ID returns the queue identifier.
func (c *Consumer[A]) ID() ID { return c.id }

// Bound reports whether the consumer was bound to an actor.
func (c *Consumer[A]) Bound() bool { return c.bound }

// Bind attaches a consumer received from the peer to the local actor.
func (c *Consumer[A]) Bind(actor A) error {
	if c.bound {
		return ErrAlreadyBound
	}
	if c.id == IllegalID {
		return ErrIllegalID
	}
	c.actor = weak.Make(actor.Base())
	c.bound = true
	return nil
}

// Pending returns the number of undecoded bytes, retained plus stored.
func (c *Consumer[A]) Pending() int {
	n := len(c.buf)
	if actor := c.resolve(); actor != nil {
		n += actor.StoredBytes(c.id)
	}
	return n
}

// TryRemove decodes one argument list into outs, which must be pointers of the
// types the producer inserted. Bytes are discarded only when every parameter
// decodes. On NotReady the outs may be partially written and the call can be
// repeated once more data has arrived.
func (c *Consumer[A]) TryRemove(outs ...any) encoding.Status {
	actor := c.resolve()
	if actor == nil {
		log.Provide().Warn("Queue consumer has no live actor", log.Uint64("queue", uint64(c.id)))
		return encoding.FatalError
	}

	if data := actor.TakeQueueData(c.id); len(data) > 0 {
		if len(c.buf) == 0 {
			c.buf = data
		} else {
			c.buf = append(c.buf, data...)
		}
	}

	view := encoding.NewConsumerView(c.buf)
	for _, out := range outs {
		if st := view.ReadParam(out); !st.IsSuccess() {
			if st.IsFatal() {
				actor.logger.Warn("Failed to decode queue parameters",
					log.Uint64("queue", uint64(c.id)),
					log.String("status", st.String()))
			}
			return st
		}
	}

	c.discard(view.Consumed())
	return encoding.Success
}

func (c *Consumer[A]) discard(n int) {
	if n == 0 {
		return
	}
	if n >= len(c.buf) {
		c.buf = nil
		return
	}
	c.buf = c.buf[:copy(c.buf, c.buf[n:])]
}

func (c *Consumer[A]) resolve() *Actor {
	actor := c.actor.Value()
	if actor == nil || actor.Destroyed() {
		return nil
	}
	return actor
}

// MinSize implements encoding.Marshaler.
func (c *Consumer[A]) MinSize() int { return 8 + 4 + len(c.buf) }

// MarshalQueue writes the queue id and any retained bytes so the consumer can
// be handed to the peer. Only an unbound consumer may travel.
func (c *Consumer[A]) MarshalQueue(w *encoding.ProducerView) encoding.Status {
	if c.bound || c.id == IllegalID {
		return encoding.FatalError
	}
	if st := w.WriteUint64(uint64(c.id)); !st.IsSuccess() {
		return st
	}
	return w.WriteBytes(c.buf)
}

// UnmarshalQueue implements encoding.Unmarshaler. The result is unbound.
func (c *Consumer[A]) UnmarshalQueue(r *encoding.ConsumerView) encoding.Status {
	var id uint64
	var buf []byte
	if st := r.ReadUint64(&id); !st.IsSuccess() {
		return st
	}
	if st := r.ReadBytes(&buf); !st.IsSuccess() {
		return st
	}
	if ID(id) == IllegalID {
		return encoding.FatalError
	}
	*c = Consumer[A]{id: ID(id), buf: buf}
	return encoding.Success
}

// MarshalBinary encodes an unbound consumer for an out-of-band handoff.
func (c *Consumer[A]) MarshalBinary() ([]byte, error) {
	if c.bound {
		return nil, ErrAlreadyBound
	}
	return marshalHalf(c)
}

// UnmarshalBinary decodes a consumer encoded by MarshalBinary.
func (c *Consumer[A]) UnmarshalBinary(data []byte) error {
	return unmarshalHalf(c, data)
}
