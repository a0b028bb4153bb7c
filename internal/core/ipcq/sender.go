package ipcq

import (
	"time"

	"github.com/zeusync/ipcq/internal/core/observability/log"
)

type sender interface {
	transmit(mode Mode, env Envelope) bool
	flushCache() bool
	scheduleFlush(delay time.Duration) bool
	flushFired()
	// beginResponse moves the cache into resp and redirects every following
	// transmission there until endResponse.
	beginResponse(resp *EnvelopeSet) error
	endResponse()
	reset() int
}

type asyncSender struct {
	actor          *Actor
	cache          EnvelopeSet
	redirect       *EnvelopeSet
	flushScheduled bool
}

func newAsyncSender(actor *Actor) *asyncSender {
	return &asyncSender{actor: actor}
}

func (s *asyncSender) transmit(mode Mode, env Envelope) bool {
	if s.redirect != nil {
		s.redirect.Merge(env)
		return true
	}

	switch mode {
	case BufferedAsync:
		s.cache.Merge(env)
		s.scheduleFlush(s.actor.cfg.FlushDelay)
		return true
	case Sync:
		s.actor.logger.Warn("Synchronous transmission on an asynchronous sender, sending asynchronously",
			log.Uint64("queue", uint64(env.ID)))
	}

	if !s.flushCache() {
		return false
	}
	return s.actor.send(env)
}

// flushCache sends cached envelopes in order. On failure the unsent tail stays
// cached.
func (s *asyncSender) flushCache() bool {
	for i := range s.cache {
		if s.cache[i].Empty() {
			continue
		}
		if !s.actor.send(s.cache[i]) {
			s.cache = append(EnvelopeSet(nil), s.cache[i:]...)
			return false
		}
	}
	s.cache = nil
	return true
}

func (s *asyncSender) scheduleFlush(delay time.Duration) bool {
	if s.flushScheduled {
		return true
	}

	self := s.actor.self
	err := s.actor.home.DelayedDispatch(func() {
		actor := self.Value()
		if actor == nil || actor.Destroyed() || actor.sender == nil {
			return
		}
		actor.sender.flushFired()
		actor.sender.flushCache()
	}, delay)
	if err != nil {
		s.actor.logger.Warn("Failed to schedule cache flush", log.Error(err))
		return false
	}

	s.flushScheduled = true
	return true
}

func (s *asyncSender) flushFired() {
	s.flushScheduled = false
}

func (s *asyncSender) beginResponse(resp *EnvelopeSet) error {
	if s.redirect != nil {
		return NewError(ErrorCodeNestedExchange, "response redirect already installed", ErrNestedExchange)
	}
	*resp = s.cache
	s.cache = nil
	s.redirect = resp
	return nil
}

func (s *asyncSender) endResponse() {
	s.redirect = nil
}

func (s *asyncSender) reset() int {
	dropped := s.cache.Size()
	s.cache = nil
	s.redirect = nil
	return dropped
}

type syncSender struct {
	*asyncSender
}

func newSyncSender(actor *Actor) *syncSender {
	return &syncSender{asyncSender: newAsyncSender(actor)}
}

// transmit sends Sync envelopes through an exchange and stores the responses.
// Cached data is flushed first so the peer sees it before the request.
func (s *syncSender) transmit(mode Mode, env Envelope) bool {
	if s.redirect != nil || mode != Sync {
		return s.asyncSender.transmit(mode, env)
	}

	if !s.flushCache() {
		return false
	}

	responses, err := s.actor.exchange(env)
	if err != nil {
		return false
	}
	for _, resp := range responses {
		if resp.Empty() {
			continue
		}
		if !s.actor.StoreEnvelope(resp) {
			return false
		}
	}
	return true
}
