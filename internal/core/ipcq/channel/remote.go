package channel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/ipcq/internal/core/ipcq"
	"github.com/zeusync/ipcq/internal/core/ipcq/shm"
	"github.com/zeusync/ipcq/internal/core/observability/log"
)

var _ ipcq.Channel = (*Remote)(nil)

type RemoteOption func(*Remote)

func WithRemoteLogger(logger log.Log) RemoteOption {
	return func(r *Remote) { r.logger = logger }
}

// WithMaxFrameSize bounds frames in both directions. Zero disables the check.
func WithMaxFrameSize(size int) RemoteOption {
	return func(r *Remote) { r.maxFrame = size }
}

// Remote carries a channel over a Conn. A reader goroutine decodes frames and
// posts them to the bound actor's dispatcher in arrival order. Transmits that
// arrived before an exchange reply are delivered by the waiting caller ahead
// of the reply.
type Remote struct {
	id       uuid.UUID
	conn     Conn
	logger   log.Log
	maxFrame int

	in        ipcq.Inbound
	home      ipcq.Dispatcher
	bound     chan struct{}
	bindOnce  sync.Once
	closeOnce sync.Once
	inbox     inbox

	writeMu sync.Mutex
	seq     atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan exchangeResult

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewRemote starts reading from conn. Frames are held back until Bind.
func NewRemote(conn Conn, opts ...RemoteOption) *Remote {
	r := &Remote{
		id:      uuid.New(),
		conn:    conn,
		logger:  log.Provide(),
		bound:   make(chan struct{}),
		pending: make(map[uint64]chan exchangeResult),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("remote").With(
		log.String("channel", r.id.String()),
		log.String("conn", conn.ID()),
		log.String("peer", conn.RemoteAddr()))

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.group, r.ctx = errgroup.WithContext(ctx)

	r.group.Go(r.readLoop)
	r.group.Go(func() error {
		<-r.ctx.Done()
		r.shutdown()
		return nil
	})
	return r
}

// ID returns the channel identifier used in logs.
func (r *Remote) ID() string { return r.id.String() }

// Bind implements ipcq.Channel. Only the first call has an effect.
func (r *Remote) Bind(in ipcq.Inbound, home ipcq.Dispatcher) {
	r.bindOnce.Do(func() {
		r.in, r.home = in, home
		close(r.bound)
	})
}

// SendEnvelope implements ipcq.Channel.
func (r *Remote) SendEnvelope(ctx context.Context, env ipcq.Envelope) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	return r.write(frame{kind: frameTransmit, envelopes: ipcq.EnvelopeSet{env}})
}

// ExchangeEnvelope implements ipcq.Channel.
func (r *Remote) ExchangeEnvelope(ctx context.Context, env ipcq.Envelope) (ipcq.EnvelopeSet, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}

	seq := r.seq.Add(1)
	result := make(chan exchangeResult, 1)
	r.pendingMu.Lock()
	r.pending[seq] = result
	r.pendingMu.Unlock()
	defer r.forget(seq)

	if err := r.write(frame{kind: frameExchange, seq: seq, envelopes: ipcq.EnvelopeSet{env}}); err != nil {
		return nil, err
	}

	select {
	case res := <-result:
		if res.err != nil {
			return nil, res.err
		}
		if err := deliver(r.in, r.inbox.through(seq)); err != nil {
			r.fail(0, err)
			return nil, errors.Wrap(err, "failed to deliver transmits ahead of reply")
		}
		return res.envelopes, nil
	case <-r.ctx.Done():
		return nil, ipcq.ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AllocateSharedBuffer implements ipcq.Channel. Memory cannot be shared across
// a network connection.
func (r *Remote) AllocateSharedBuffer(int) (*shm.Buffer, error) {
	return nil, errors.Wrap(ipcq.ErrChannelUnsupported, "shared memory over "+r.conn.RemoteAddr())
}

// Close stops the reader and closes the connection.
func (r *Remote) Close() error {
	r.cancel()
	return nil
}

// Wait blocks until the reader has stopped and returns the error that
// stopped it, if any.
func (r *Remote) Wait() error {
	err := r.group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Done is closed once the channel is shutting down.
func (r *Remote) Done() <-chan struct{} { return r.ctx.Done() }

func (r *Remote) check(ctx context.Context) error {
	if r.ctx.Err() != nil {
		return ipcq.ErrChannelClosed
	}
	return ctx.Err()
}

func (r *Remote) write(f frame) error {
	w := frameBuffers.Get()
	defer frameBuffers.Put(w)

	if err := encodeFrame(w, f, r.maxFrame); err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.conn.Send(w.Bytes()); err != nil {
		return errors.Wrapf(err, "failed to send %s frame", f.kind)
	}
	return nil
}

func (r *Remote) readLoop() error {
	select {
	case <-r.bound:
	case <-r.ctx.Done():
		return nil
	}

	for {
		data, err := r.conn.Receive()
		if err != nil {
			if r.ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to receive frame")
		}

		f, err := decodeFrame(data, r.maxFrame)
		if err != nil {
			r.logger.Error("Dropping connection after bad frame", log.Error(err))
			return err
		}

		if err := r.dispatch(f); err != nil {
			return err
		}
	}
}

func (r *Remote) dispatch(f frame) error {
	switch f.kind {
	case frameTransmit:
		r.inbox.push(f.envelopes...)
		return r.post(r.drain)

	case frameExchange:
		if len(f.envelopes) != 1 {
			return errors.Wrapf(ErrInvalidFrame, "exchange carries %d envelopes", len(f.envelopes))
		}
		seq, env := f.seq, f.envelopes[0]
		return r.post(func() {
			responses, err := r.in.OnReceiveExchange(env)
			if err != nil {
				r.fail(seq, err)
				return
			}
			if err := r.write(frame{kind: frameReply, seq: seq, envelopes: responses}); err != nil {
				r.logger.Warn("Failed to send exchange reply", log.Uint64("seq", seq), log.Error(err))
				_ = r.Close()
			}
		})

	case frameReply:
		r.inbox.pushReply(f.seq)
		r.resolve(f.seq, exchangeResult{envelopes: f.envelopes})

	case frameFailure:
		err := errors.Wrapf(ipcq.ErrProtocolViolation, "peer reported a protocol error: %s", f.reason)
		if f.seq != 0 {
			r.resolve(f.seq, exchangeResult{err: err})
		}
		return err
	}
	return nil
}

// drain delivers the transmits waiting in the inbox. It runs on the bound
// dispatcher.
func (r *Remote) drain() {
	if err := deliver(r.in, r.inbox.next()); err != nil {
		r.fail(0, err)
	}
}

func (r *Remote) post(task func()) error {
	if err := r.home.Post(task); err != nil {
		return errors.Wrap(err, "failed to post to actor dispatcher")
	}
	return nil
}

func (r *Remote) resolve(seq uint64, res exchangeResult) {
	r.pendingMu.Lock()
	result, ok := r.pending[seq]
	delete(r.pending, seq)
	r.pendingMu.Unlock()

	if !ok {
		// The caller gave up waiting.
		r.logger.Warn("Reply for unknown exchange", log.Uint64("seq", seq))
		return
	}
	result <- res
}

func (r *Remote) forget(seq uint64) {
	r.pendingMu.Lock()
	delete(r.pending, seq)
	r.pendingMu.Unlock()
}

// fail reports a rejected message to the peer and closes the channel.
func (r *Remote) fail(seq uint64, err error) {
	r.logger.Error("Protocol error, closing channel", log.Uint64("seq", seq), log.Error(err))
	reason := err.Error()
	if len(reason) > maxFailureReason {
		reason = reason[:maxFailureReason]
	}
	if writeErr := r.write(frame{kind: frameFailure, seq: seq, reason: reason}); writeErr != nil {
		r.logger.Debug("Failed to report protocol error", log.Error(writeErr))
	}
	_ = r.Close()
}

func (r *Remote) shutdown() {
	r.closeOnce.Do(func() {
		if err := r.conn.Close(); err != nil {
			r.logger.Debug("Failed to close connection", log.Error(err))
		}

		r.pendingMu.Lock()
		for seq, result := range r.pending {
			result <- exchangeResult{err: ipcq.ErrChannelClosed}
			delete(r.pending, seq)
		}
		r.pendingMu.Unlock()
		r.logger.Debug("Channel closed")
	})
}
