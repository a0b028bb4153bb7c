package ipcq

import (
	"github.com/zeusync/ipcq/internal/core/observability/log"
)

type receiver interface {
	store(env Envelope) bool
	take(id ID) []byte
	stored(id ID) int
	reset() int
}

type syncCapable interface {
	exchange(env Envelope) (EnvelopeSet, error)
}

type asyncReceiver struct {
	actor   *Actor
	buffers map[ID][]byte
}

func newAsyncReceiver(actor *Actor) *asyncReceiver {
	return &asyncReceiver{
		actor:   actor,
		buffers: make(map[ID][]byte),
	}
}

func (r *asyncReceiver) store(env Envelope) bool {
	if env.ID == IllegalID {
		r.actor.logger.Error("Envelope with illegal queue id")
		return false
	}

	existing := r.buffers[env.ID]
	if limit := r.actor.cfg.MaxStoredBytes; limit > 0 && len(existing)+len(env.Data) > limit {
		r.actor.logger.Error("Stored queue data exceeds limit",
			log.Uint64("queue", uint64(env.ID)),
			log.Int("stored", len(existing)),
			log.Int("incoming", len(env.Data)),
			log.Int("limit", limit))
		return false
	}

	if existing == nil {
		r.buffers[env.ID] = env.Data
		return true
	}
	r.buffers[env.ID] = append(existing, env.Data...)
	return true
}

func (r *asyncReceiver) take(id ID) []byte {
	data, ok := r.buffers[id]
	if !ok {
		return nil
	}
	delete(r.buffers, id)
	return data
}

func (r *asyncReceiver) stored(id ID) int {
	return len(r.buffers[id])
}

func (r *asyncReceiver) reset() int {
	dropped := 0
	for _, data := range r.buffers {
		dropped += len(data)
	}
	clear(r.buffers)
	return dropped
}

type syncReceiver struct {
	*asyncReceiver
}

func newSyncReceiver(actor *Actor) *syncReceiver {
	return &syncReceiver{asyncReceiver: newAsyncReceiver(actor)}
}

// exchange stores the request, runs the queue's handler with the actor's
// sender redirected into the response and returns what the handler produced
// together with any data that was cached before the request arrived.
func (r *syncReceiver) exchange(env Envelope) (resp EnvelopeSet, err error) {
	actor := r.actor
	id := env.ID

	if !r.store(env) {
		return nil, NewError(ErrorCodeStoreFailed, "queue "+id.String(), ErrStoreFailed)
	}

	if err := actor.sender.beginResponse(&resp); err != nil {
		return nil, err
	}
	defer actor.sender.endResponse()

	if debugChecks {
		if existing := resp.Find(id); existing != nil && !existing.Empty() {
			return nil, NewError(ErrorCodeProtocolViolation,
				"response already holds data for queue "+id.String(), ErrProtocolViolation)
		}
	}

	if err := actor.runQueue(id, true); err != nil {
		return nil, err
	}
	return resp, nil
}
