package ipcq

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
	"weak"

	"github.com/zeusync/ipcq/internal/config"
	"github.com/zeusync/ipcq/internal/core/ipcq/shm"
	"github.com/zeusync/ipcq/internal/core/observability/log"
)

var _ Inbound = (*Actor)(nil)

// SenderKind selects the producer capability of an actor.
type SenderKind uint8

const (
	NoSender SenderKind = iota
	// AsyncSender supports Async and BufferedAsync. Sync degrades to Async.
	AsyncSender
	// SyncSender supports all modes.
	SyncSender
)

// ReceiverKind selects the consumer capability of an actor.
type ReceiverKind uint8

const (
	NoReceiver ReceiverKind = iota
	// AsyncReceiver stores asynchronous envelopes.
	AsyncReceiver
	// SyncReceiver also answers synchronous exchanges.
	SyncReceiver
)

// ActorConfig holds the limits an actor enforces.
type ActorConfig struct {
	FlushDelay          time.Duration
	MaxEnvelopeSize     int
	MaxStoredBytes      int
	MaxSharedBufferSize int
}

// ActorConfigFrom converts the queue section of the process config.
func ActorConfigFrom(q config.QueueConfig) ActorConfig {
	return ActorConfig{
		FlushDelay:          q.FlushDelay,
		MaxEnvelopeSize:     q.MaxEnvelopeSize,
		MaxStoredBytes:      q.MaxStoredBytes,
		MaxSharedBufferSize: q.MaxSharedBufferSize,
	}
}

// DefaultActorConfig returns the limits of config.Default.
func DefaultActorConfig() ActorConfig {
	return ActorConfigFrom(config.Default().Queue)
}

// Option configures NewActor.
type Option func(*Actor)

func WithSender(kind SenderKind) Option {
	return func(a *Actor) { a.senderKind = kind }
}

func WithReceiver(kind ReceiverKind) Option {
	return func(a *Actor) { a.receiverKind = kind }
}

// WithModeSelector sets the mode used by Producer.TryInsert. The default is Async.
func WithModeSelector(selector ModeSelector) Option {
	return func(a *Actor) {
		if selector != nil {
			a.modeFor = selector
		}
	}
}

func WithConfig(cfg ActorConfig) Option {
	return func(a *Actor) { a.cfg = cfg }
}

func WithLogger(logger log.Log) Option {
	return func(a *Actor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Host is implemented by every type that embeds *Actor.
type Host interface {
	Base() *Actor
}

// Actor is one endpoint of a channel hosting any number of queue halves.
// Concrete actor types embed *Actor and add PeerOf markers.
//
// Everything except Destroyed must be called on the actor's dispatcher.
type Actor struct {
	name    string
	cfg     ActorConfig
	channel Channel
	home    Dispatcher
	logger  log.Log

	ctx       context.Context
	cancel    context.CancelFunc
	destroyed atomic.Bool

	senderKind   SenderKind
	receiverKind ReceiverKind
	sender       sender
	receiver     receiver
	modeFor      ModeSelector
	runners      map[ID]Runner

	self weak.Pointer[Actor]
}

// NewActor creates an actor on ch that runs on home and binds it as the
// channel's inbound side. A sync sender gets an async receiver for the
// responses it reads, and a sync receiver gets an async sender for the
// responses it writes, when none was requested.
func NewActor(name string, ch Channel, home Dispatcher, opts ...Option) *Actor {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor{
		name:    name,
		cfg:     DefaultActorConfig(),
		channel: ch,
		home:    home,
		logger:  log.Provide(),
		ctx:     ctx,
		cancel:  cancel,
		modeFor: defaultModeSelector,
		runners: make(map[ID]Runner),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.senderKind == SyncSender && a.receiverKind == NoReceiver {
		a.receiverKind = AsyncReceiver
	}
	if a.receiverKind == SyncReceiver && a.senderKind == NoSender {
		a.senderKind = AsyncSender
	}

	a.logger = a.logger.Named("ipcq").With(log.String("actor", name))
	a.self = weak.Make(a)

	switch a.senderKind {
	case AsyncSender:
		a.sender = newAsyncSender(a)
	case SyncSender:
		a.sender = newSyncSender(a)
	}
	switch a.receiverKind {
	case AsyncReceiver:
		a.receiver = newAsyncReceiver(a)
	case SyncReceiver:
		a.receiver = newSyncReceiver(a)
	}

	ch.Bind(a, home)
	return a
}

// Base returns the actor itself so embedding types satisfy Host.
func (a *Actor) Base() *Actor { return a }

func (a *Actor) Name() string { return a.name }

func (a *Actor) Config() ActorConfig { return a.cfg }

func (a *Actor) Logger() log.Log { return a.logger }

// Dispatcher returns the execution context the actor lives on.
func (a *Actor) Dispatcher() Dispatcher { return a.home }

// Destroyed may be called from any goroutine.
func (a *Actor) Destroyed() bool { return a.destroyed.Load() }

// Destroy tears the actor down. Cached and stored data is dropped, pending
// channel calls are cancelled and every queue half bound to the actor starts
// failing with FatalError. The channel itself is left to its owner.
func (a *Actor) Destroy() {
	if !a.destroyed.CompareAndSwap(false, true) {
		return
	}
	a.cancel()

	dropped := 0
	if a.sender != nil {
		dropped += a.sender.reset()
	}
	if a.receiver != nil {
		dropped += a.receiver.reset()
	}
	a.runners = nil

	a.logger.Debug("Actor destroyed", log.Int("dropped_bytes", dropped))
}

// HandleQueue registers the function that processes data arriving for id.
// It runs for every synchronous request on the queue, where it is required,
// and after every asynchronous envelope when registered. Passing nil removes
// the handler.
func (a *Actor) HandleQueue(id ID, run Runner) {
	if a.Destroyed() {
		return
	}
	if run == nil {
		delete(a.runners, id)
		return
	}
	a.runners[id] = run
}

// Flush sends every cached BufferedAsync envelope now.
func (a *Actor) Flush() bool {
	if a.Destroyed() || a.sender == nil {
		return false
	}
	return a.sender.flushCache()
}

// StoreEnvelope appends env's payload to the data held for its queue.
func (a *Actor) StoreEnvelope(env Envelope) bool {
	if a.Destroyed() {
		return false
	}
	if a.receiver == nil {
		a.logger.Error("Envelope arrived at an actor without a receiver", log.Uint64("queue", uint64(env.ID)))
		return false
	}
	return a.receiver.store(env)
}

// TakeQueueData moves the stored bytes for id out of the actor. It returns nil
// when nothing is stored.
func (a *Actor) TakeQueueData(id ID) []byte {
	if a.Destroyed() || a.receiver == nil {
		return nil
	}
	return a.receiver.take(id)
}

// StoredBytes returns the number of bytes held for id.
func (a *Actor) StoredBytes(id ID) int {
	if a.Destroyed() || a.receiver == nil {
		return 0
	}
	return a.receiver.stored(id)
}

// AllocSharedBuffer asks the channel for an out-of-band shared memory region.
func (a *Actor) AllocSharedBuffer(size int) (*shm.Buffer, error) {
	if a.Destroyed() {
		return nil, ErrActorDestroyed
	}
	if a.cfg.MaxSharedBufferSize > 0 && size > a.cfg.MaxSharedBufferSize {
		return nil, NewError(ErrorCodeChannelUnsupported,
			fmt.Sprintf("shared buffer of %d bytes exceeds limit of %d", size, a.cfg.MaxSharedBufferSize),
			ErrChannelUnsupported)
	}
	return a.channel.AllocateSharedBuffer(size)
}

// OnReceiveTransmit implements Inbound.
func (a *Actor) OnReceiveTransmit(env Envelope) error {
	if a.Destroyed() {
		return ErrActorDestroyed
	}
	if a.receiver == nil {
		return NewError(ErrorCodeNotConsumer, "asynchronous envelope for queue "+env.ID.String(), ErrNotConsumer)
	}
	id := env.ID
	if !a.receiver.store(env) {
		return NewError(ErrorCodeStoreFailed, "queue "+id.String(), ErrStoreFailed)
	}
	return a.runQueue(id, false)
}

// OnReceiveExchange implements Inbound.
func (a *Actor) OnReceiveExchange(env Envelope) (EnvelopeSet, error) {
	if a.Destroyed() {
		return nil, ErrActorDestroyed
	}
	exchanger, ok := a.receiver.(syncCapable)
	if !ok {
		return nil, NewError(ErrorCodeNotSyncCapable, "synchronous envelope for queue "+env.ID.String(), ErrNotSyncCapable)
	}
	return exchanger.exchange(env)
}

func (a *Actor) transmit(mode Mode, env Envelope) bool {
	if a.Destroyed() {
		return false
	}
	if a.sender == nil {
		a.logger.Error("Producer bound to an actor without a sender", log.Uint64("queue", uint64(env.ID)))
		return false
	}
	return a.sender.transmit(mode, env)
}

func (a *Actor) send(env Envelope) bool {
	if err := a.channel.SendEnvelope(a.ctx, env); err != nil {
		a.logger.Warn("Failed to send envelope",
			log.Uint64("queue", uint64(env.ID)),
			log.Int("size", len(env.Data)),
			log.Error(err))
		return false
	}
	return true
}

func (a *Actor) exchange(env Envelope) (EnvelopeSet, error) {
	responses, err := a.channel.ExchangeEnvelope(a.ctx, env)
	if err != nil {
		a.logger.Warn("Synchronous exchange failed",
			log.Uint64("queue", uint64(env.ID)),
			log.Error(err))
		return nil, err
	}
	return responses, nil
}

func (a *Actor) runQueue(id ID, required bool) (err error) {
	run, ok := a.runners[id]
	if !ok {
		if required {
			return NewError(ErrorCodeNoHandler, "queue "+id.String(), ErrNoHandler)
		}
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrorCodeHandlerFailed,
				fmt.Sprintf("queue %s handler panicked: %v", id, r), ErrHandlerFailed)
		}
	}()

	if runErr := run(); runErr != nil {
		return NewError(ErrorCodeHandlerFailed, "queue "+id.String(), runErr)
	}
	return nil
}
