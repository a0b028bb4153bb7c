package ipcq

import (
	"context"
	"time"

	"github.com/zeusync/ipcq/internal/core/ipcq/shm"
)

// Dispatcher runs tasks on the single execution context that owns an actor.
// Tasks posted to one Dispatcher never run concurrently with each other.
type Dispatcher interface {
	Post(task func()) error
	DelayedDispatch(task func(), delay time.Duration) error
}

// Inbound is the receiving end of a channel. Channels call it on the
// dispatcher passed to Bind.
type Inbound interface {
	// OnReceiveTransmit handles an asynchronous envelope. A non-nil error is a
	// protocol failure.
	OnReceiveTransmit(env Envelope) error
	// OnReceiveExchange handles a synchronous request and returns the response
	// set for the peer.
	OnReceiveExchange(env Envelope) (EnvelopeSet, error)
}

// Channel is the ordered, reliable, bidirectional actor channel queues ride on.
// Asynchronous sends and synchronous exchanges issued by one side are delivered
// to the other side in issue order.
type Channel interface {
	// Bind attaches the local receiving actor and the dispatcher it lives on.
	Bind(in Inbound, home Dispatcher)
	SendEnvelope(ctx context.Context, env Envelope) error
	// ExchangeEnvelope blocks until the peer has processed env and returns the
	// envelopes it produced while doing so.
	ExchangeEnvelope(ctx context.Context, env Envelope) (EnvelopeSet, error)
	AllocateSharedBuffer(size int) (*shm.Buffer, error)
	Close() error
}

// Runner processes the data that arrived for one queue. It runs on the actor's
// dispatcher after the envelope has been stored.
type Runner func() error
