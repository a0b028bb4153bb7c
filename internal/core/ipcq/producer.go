package ipcq

import (
	"weak"

	"github.com/zeusync/ipcq/internal/core/ipcq/shm"
	"github.com/zeusync/ipcq/internal/core/observability/log"
	"github.com/zeusync/ipcq/pkg/encoding"
)

var (
	_ encoding.Marshaler   = (*Producer[*Actor])(nil)
	_ encoding.Unmarshaler = (*Producer[*Actor])(nil)
)

// Producer is the sending half of a queue. It holds only a weak reference to
// its actor: once the actor is destroyed or collected every operation fails
// with FatalError.
type Producer[A Host] struct {
	id    ID
	actor weak.Pointer[Actor]
	bound bool
	view  encoding.ProducerView
}

func newProducer[A Host](id ID, actor *Actor) *Producer[A] {
	p := &Producer[A]{id: id}
	if actor != nil {
		p.actor = weak.Make(actor)
		p.bound = true
	}
	return p
}

// ID returns the queue identifier.
func (p *Producer[A]) ID() ID { return p.id }

// Bound reports whether the producer was bound to an actor.
func (p *Producer[A]) Bound() bool { return p.bound }

// Bind attaches a producer received from the peer to the local actor.
func (p *Producer[A]) Bind(actor A) error {
	if p.bound {
		return ErrAlreadyBound
	}
	if p.id == IllegalID {
		return ErrIllegalID
	}
	p.actor = weak.Make(actor.Base())
	p.bound = true
	return nil
}

// TryInsert serializes args into one envelope and transmits it in the mode
// chosen by the actor's mode selector.
func (p *Producer[A]) TryInsert(args ...any) encoding.Status {
	return p.insert(Async, false, args)
}

// TryInsertMode is TryInsert with an explicit mode.
func (p *Producer[A]) TryInsertMode(mode Mode, args ...any) encoding.Status {
	return p.insert(mode, true, args)
}

// AllocSharedBuffer allocates an out-of-band region through the actor's
// channel and copies initial into it when given. Allocation failures report
// OOMError; initial bytes that cannot fit report TooSmall.
func (p *Producer[A]) AllocSharedBuffer(size int, initial []byte) (*shm.Buffer, encoding.Status) {
	actor := p.resolve()
	if actor == nil {
		return nil, encoding.FatalError
	}
	if len(initial) > size {
		return nil, encoding.TooSmall
	}
	buf, err := actor.AllocSharedBuffer(size)
	if err != nil {
		actor.logger.Warn("Failed to allocate shared buffer", log.Int("size", size), log.Error(err))
		return nil, encoding.OOMError
	}
	copy(buf.Bytes(), initial)
	return buf, encoding.Success
}

func (p *Producer[A]) insert(mode Mode, explicit bool, args []any) encoding.Status {
	if p.id == IllegalID {
		return encoding.FatalError
	}
	actor := p.resolve()
	if actor == nil {
		log.Provide().Warn("Queue producer has no live actor", log.Uint64("queue", uint64(p.id)))
		return encoding.FatalError
	}
	if !explicit {
		mode = actor.modeFor(args)
	}

	defer p.view.Reset()
	if st := p.serialize(actor, args); !st.IsSuccess() {
		actor.logger.Warn("Failed to serialize queue parameters",
			log.Uint64("queue", uint64(p.id)),
			log.String("status", st.String()))
		return st
	}

	env := Envelope{ID: p.id, Data: p.view.Take()}
	if !actor.transmit(mode, env) {
		return encoding.FatalError
	}
	return encoding.Success
}

func (p *Producer[A]) serialize(actor *Actor, args []any) encoding.Status {
	p.view.Reset()
	p.view.SetLimit(actor.cfg.MaxEnvelopeSize)
	if st := p.view.Reserve(encoding.MinSizeOfArgs(args...)); !st.IsSuccess() {
		return st
	}
	for _, arg := range args {
		if st := p.view.WriteParam(arg); !st.IsSuccess() {
			return st
		}
	}
	return encoding.Success
}

func (p *Producer[A]) resolve() *Actor {
	actor := p.actor.Value()
	if actor == nil || actor.Destroyed() {
		return nil
	}
	return actor
}

// MinSize implements encoding.Marshaler.
func (p *Producer[A]) MinSize() int { return 8 }

// MarshalQueue writes the queue id so the producer can be handed to the peer.
// Only an unbound producer may travel.
func (p *Producer[A]) MarshalQueue(w *encoding.ProducerView) encoding.Status {
	if p.bound || p.id == IllegalID {
		return encoding.FatalError
	}
	return w.WriteUint64(uint64(p.id))
}

// UnmarshalQueue implements encoding.Unmarshaler. The result is unbound.
func (p *Producer[A]) UnmarshalQueue(r *encoding.ConsumerView) encoding.Status {
	var id uint64
	if st := r.ReadUint64(&id); !st.IsSuccess() {
		return st
	}
	if ID(id) == IllegalID {
		return encoding.FatalError
	}
	*p = Producer[A]{id: ID(id)}
	return encoding.Success
}

// MarshalBinary encodes an unbound producer for an out-of-band handoff.
func (p *Producer[A]) MarshalBinary() ([]byte, error) {
	if p.bound {
		return nil, ErrAlreadyBound
	}
	return marshalHalf(p)
}

// UnmarshalBinary decodes a producer encoded by MarshalBinary.
func (p *Producer[A]) UnmarshalBinary(data []byte) error {
	return unmarshalHalf(p, data)
}

func marshalHalf(m encoding.Marshaler) ([]byte, error) {
	w := encoding.NewProducerView(m.MinSize())
	if st := m.MarshalQueue(w); !st.IsSuccess() {
		return nil, NewError(ErrorCodeIllegalID, "encode queue half: "+st.String(), ErrIllegalID)
	}
	return w.Take(), nil
}

func unmarshalHalf(u encoding.Unmarshaler, data []byte) error {
	r := encoding.NewConsumerView(data)
	if st := u.UnmarshalQueue(r); !st.IsSuccess() {
		return NewError(ErrorCodeProtocolViolation, "decode queue half: "+st.String(), ErrProtocolViolation)
	}
	if r.Remaining() != 0 {
		return NewError(ErrorCodeProtocolViolation, "trailing bytes after queue half", ErrProtocolViolation)
	}
	return nil
}
