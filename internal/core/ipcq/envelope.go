package ipcq

import (
	"github.com/zeusync/ipcq/pkg/encoding"
)

// Envelope carries the serialized bytes of one or more argument lists for a
// single queue. Whoever receives an Envelope owns Data; the sender must not
// touch it afterwards.
type Envelope struct {
	ID   ID
	Data []byte
}

// Empty reports whether the envelope carries no payload.
func (e *Envelope) Empty() bool { return len(e.Data) == 0 }

// Append concatenates other's payload onto e.
func (e *Envelope) Append(other []byte) {
	e.Data = append(e.Data, other...)
}

// MinSize implements encoding.Marshaler.
func (e Envelope) MinSize() int { return 8 + 4 + len(e.Data) }

// MarshalQueue implements encoding.Marshaler.
func (e Envelope) MarshalQueue(w *encoding.ProducerView) encoding.Status {
	if st := w.WriteUint64(uint64(e.ID)); !st.IsSuccess() {
		return st
	}
	return w.WriteBytes(e.Data)
}

// UnmarshalQueue implements encoding.Unmarshaler.
func (e *Envelope) UnmarshalQueue(r *encoding.ConsumerView) encoding.Status {
	var id uint64
	var data []byte
	if st := r.ReadUint64(&id); !st.IsSuccess() {
		return st
	}
	if st := r.ReadBytes(&data); !st.IsSuccess() {
		return st
	}
	e.ID, e.Data = ID(id), data
	return encoding.Success
}

// EnvelopeSet is an ordered batch of envelopes with at most one entry per ID.
type EnvelopeSet []Envelope

// Merge appends env's payload to the entry with the same ID, or adds env as a
// new entry at the end.
func (s *EnvelopeSet) Merge(env Envelope) {
	if existing := s.Find(env.ID); existing != nil {
		existing.Append(env.Data)
		return
	}
	*s = append(*s, env)
}

// Find returns the entry for id, or nil.
func (s EnvelopeSet) Find(id ID) *Envelope {
	for i := range s {
		if s[i].ID == id {
			return &s[i]
		}
	}
	return nil
}

// Size returns the total payload bytes in the set.
func (s EnvelopeSet) Size() int {
	n := 0
	for i := range s {
		n += len(s[i].Data)
	}
	return n
}
