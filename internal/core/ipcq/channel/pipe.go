// Package channel implements ipcq.Channel in-process and over network
// connections.
package channel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/zeusync/ipcq/internal/core/ipcq"
	"github.com/zeusync/ipcq/internal/core/ipcq/shm"
	"github.com/zeusync/ipcq/internal/core/observability/log"
)

var _ ipcq.Channel = (*Pipe)(nil)

type PipeOption func(*pipeOptions)

type pipeOptions struct {
	logger log.Log
	alloc  shm.Allocator
}

func WithPipeLogger(logger log.Log) PipeOption {
	return func(o *pipeOptions) { o.logger = logger }
}

// WithSharedMemory sets the allocator behind AllocateSharedBuffer.
func WithSharedMemory(alloc shm.Allocator) PipeOption {
	return func(o *pipeOptions) { o.alloc = alloc }
}

type pipeState struct {
	once   sync.Once
	closed chan struct{}
}

func (s *pipeState) close() bool {
	closed := false
	s.once.Do(func() {
		close(s.closed)
		closed = true
	})
	return closed
}

func (s *pipeState) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Pipe is one end of an in-process channel. Envelopes are handed to the
// peer's dispatcher without copying, so ownership moves with them.
//
// A synchronous exchange blocks the calling goroutine until the peer's
// dispatcher has run the request, so the two ends must not share a
// dispatcher. Transmits the peer sent before replying are delivered by the
// blocked caller ahead of the reply.
type Pipe struct {
	name   string
	peer   *Pipe
	state  *pipeState
	logger log.Log
	alloc  shm.Allocator
	inbox  inbox
	seq    atomic.Uint64

	mu   sync.RWMutex
	in   ipcq.Inbound
	home ipcq.Dispatcher
}

// NewPipe returns the two connected ends of an in-process channel.
func NewPipe(opts ...PipeOption) (*Pipe, *Pipe) {
	o := pipeOptions{logger: log.Provide()}
	for _, opt := range opts {
		opt(&o)
	}

	state := &pipeState{closed: make(chan struct{})}
	logger := o.logger.Named("pipe")
	a := &Pipe{name: "a", state: state, logger: logger.With(log.String("end", "a")), alloc: o.alloc}
	b := &Pipe{name: "b", state: state, logger: logger.With(log.String("end", "b")), alloc: o.alloc}
	a.peer, b.peer = b, a
	return a, b
}

// Bind implements ipcq.Channel.
func (p *Pipe) Bind(in ipcq.Inbound, home ipcq.Dispatcher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in, p.home = in, home
}

// SendEnvelope implements ipcq.Channel.
func (p *Pipe) SendEnvelope(ctx context.Context, env ipcq.Envelope) error {
	_, home, err := p.target(ctx)
	if err != nil {
		return err
	}

	p.peer.inbox.push(env)
	return home.Post(p.peer.drain)
}

// drain delivers the transmits waiting at this end. It runs on this end's
// dispatcher.
func (p *Pipe) drain() {
	if p.state.isClosed() {
		return
	}
	if err := deliver(p.inbound(), p.inbox.next()); err != nil {
		p.fail(err)
	}
}

type exchangeResult struct {
	envelopes ipcq.EnvelopeSet
	err       error
}

// ExchangeEnvelope implements ipcq.Channel.
func (p *Pipe) ExchangeEnvelope(ctx context.Context, env ipcq.Envelope) (ipcq.EnvelopeSet, error) {
	in, home, err := p.target(ctx)
	if err != nil {
		return nil, err
	}

	seq := p.seq.Add(1)
	result := make(chan exchangeResult, 1)
	err = home.Post(func() {
		if p.state.isClosed() {
			result <- exchangeResult{err: ipcq.ErrChannelClosed}
			return
		}
		envelopes, err := in.OnReceiveExchange(env)
		if err != nil {
			p.peer.fail(err)
		} else {
			p.inbox.pushReply(seq)
		}
		result <- exchangeResult{envelopes: envelopes, err: err}
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to post exchange")
	}

	select {
	case r := <-result:
		if r.err != nil {
			return nil, errors.Wrap(r.err, "peer failed to process exchange")
		}
		if err := deliver(p.inbound(), p.inbox.through(seq)); err != nil {
			p.fail(err)
			return nil, errors.Wrap(err, "failed to deliver transmits ahead of reply")
		}
		return r.envelopes, nil
	case <-p.state.closed:
		return nil, ipcq.ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AllocateSharedBuffer implements ipcq.Channel.
func (p *Pipe) AllocateSharedBuffer(size int) (*shm.Buffer, error) {
	if p.state.isClosed() {
		return nil, ipcq.ErrChannelClosed
	}
	buf, err := p.alloc.Alloc(size)
	if err != nil {
		return nil, errors.Wrap(ipcq.ErrChannelUnsupported, err.Error())
	}
	return buf, nil
}

// Close closes both ends.
func (p *Pipe) Close() error {
	if p.state.close() {
		p.logger.Debug("Pipe closed")
	}
	return nil
}

// Closed is closed once either end is closed.
func (p *Pipe) Closed() <-chan struct{} { return p.state.closed }

func (p *Pipe) target(ctx context.Context) (ipcq.Inbound, ipcq.Dispatcher, error) {
	if p.state.isClosed() {
		return nil, nil, ipcq.ErrChannelClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	p.peer.mu.RLock()
	defer p.peer.mu.RUnlock()
	if p.peer.in == nil || p.peer.home == nil {
		return nil, nil, ipcq.ErrChannelNotBound
	}
	return p.peer.in, p.peer.home, nil
}

func (p *Pipe) inbound() ipcq.Inbound {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.in
}

// fail tears the channel down after this end's actor rejected a message.
func (p *Pipe) fail(err error) {
	p.logger.Error("Protocol error, closing pipe", log.Error(err))
	_ = p.Close()
}
