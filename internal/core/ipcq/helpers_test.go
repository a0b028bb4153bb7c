package ipcq

import (
	"context"
	"fmt"
	"time"

	"github.com/zeusync/ipcq/internal/core/ipcq/shm"
	"github.com/zeusync/ipcq/internal/core/observability/log"
	"github.com/zeusync/ipcq/pkg/encoding"
)

type childActor struct{ *Actor }

type parentActor struct{ *Actor }

func (*childActor) PeerOf(*parentActor) {}

func (*parentActor) PeerOf(*childActor) {}

type delayedTask struct {
	task  func()
	delay time.Duration
}

// fakeDispatcher queues posted tasks and timers for the test to run.
type fakeDispatcher struct {
	tasks   []func()
	delayed []delayedTask
}

func (d *fakeDispatcher) Post(task func()) error {
	d.tasks = append(d.tasks, task)
	return nil
}

func (d *fakeDispatcher) DelayedDispatch(task func(), delay time.Duration) error {
	d.delayed = append(d.delayed, delayedTask{task: task, delay: delay})
	return nil
}

func (d *fakeDispatcher) fireTimers() {
	timers := d.delayed
	d.delayed = nil
	for _, t := range timers {
		t.task()
	}
}

// recordingChannel records outgoing traffic and, when linked, delivers it to
// the peer's actor synchronously.
type recordingChannel struct {
	in   Inbound
	home Dispatcher
	peer *recordingChannel

	events    []string
	sent      []Envelope
	exchanged []Envelope

	sendErr error
	reply   func(Envelope) (EnvelopeSet, error)
	alloc   shm.Allocator
}

func link(a, b *recordingChannel) {
	a.peer, b.peer = b, a
}

func (c *recordingChannel) Bind(in Inbound, home Dispatcher) {
	c.in, c.home = in, home
}

func (c *recordingChannel) SendEnvelope(_ context.Context, env Envelope) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.events = append(c.events, fmt.Sprintf("send:%d", env.ID))
	c.sent = append(c.sent, Envelope{ID: env.ID, Data: append([]byte(nil), env.Data...)})
	if c.peer != nil {
		return c.peer.in.OnReceiveTransmit(env)
	}
	return nil
}

func (c *recordingChannel) ExchangeEnvelope(_ context.Context, env Envelope) (EnvelopeSet, error) {
	c.events = append(c.events, fmt.Sprintf("exchange:%d", env.ID))
	c.exchanged = append(c.exchanged, Envelope{ID: env.ID, Data: append([]byte(nil), env.Data...)})
	if c.reply != nil {
		return c.reply(env)
	}
	if c.peer != nil {
		return c.peer.in.OnReceiveExchange(env)
	}
	return nil, nil
}

func (c *recordingChannel) AllocateSharedBuffer(size int) (*shm.Buffer, error) {
	return c.alloc.Alloc(size)
}

func (c *recordingChannel) Close() error { return nil }

func newTestActor(name string, opts ...Option) (*Actor, *recordingChannel, *fakeDispatcher) {
	ch := &recordingChannel{}
	home := &fakeDispatcher{}
	opts = append([]Option{WithLogger(log.NewNop())}, opts...)
	return NewActor(name, ch, home, opts...), ch, home
}

func encodeArgs(args ...any) []byte {
	w := encoding.NewProducerView(encoding.MinSizeOfArgs(args...))
	for _, arg := range args {
		w.WriteParam(arg)
	}
	return w.Take()
}

func decodeInts(data []byte) []int {
	r := encoding.NewConsumerView(data)
	var out []int
	for r.Remaining() > 0 {
		var v int
		if !r.ReadParam(&v).IsSuccess() {
			break
		}
		out = append(out, v)
	}
	return out
}

// drainInts removes ints from c until it runs dry.
func drainInts[A Host](c *Consumer[A]) []int {
	var out []int
	for {
		var v int
		if !c.TryRemove(&v).IsSuccess() {
			return out
		}
		out = append(out, v)
	}
}
