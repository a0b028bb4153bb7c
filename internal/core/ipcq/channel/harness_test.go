package channel

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/ipcq/internal/core/ipcq"
	"github.com/zeusync/ipcq/internal/core/ipcq/loop"
	"github.com/zeusync/ipcq/internal/core/observability/log"
	"github.com/zeusync/ipcq/pkg/encoding"
)

const waitTimeout = 5 * time.Second

type childActor struct{ *ipcq.Actor }

type parentActor struct{ *ipcq.Actor }

func (*childActor) PeerOf(*parentActor) {}

func (*parentActor) PeerOf(*childActor) {}

// harness runs a sync-sending child and a sync-receiving parent on their own
// loops over the given channel ends.
type harness struct {
	child      *childActor
	parent     *parentActor
	childLoop  *loop.Loop
	parentLoop *loop.Loop
}

func newHarness(t *testing.T, childEnd, parentEnd ipcq.Channel) *harness {
	t.Helper()
	h := &harness{
		childLoop:  loop.New("child", log.NewNop()),
		parentLoop: loop.New("parent", log.NewNop()),
	}
	h.childLoop.Start()
	h.parentLoop.Start()
	t.Cleanup(func() {
		_ = h.childLoop.Close()
		_ = h.parentLoop.Close()
	})

	h.child = &childActor{Actor: ipcq.NewActor("child", childEnd, h.childLoop,
		ipcq.WithLogger(log.NewNop()), ipcq.WithSender(ipcq.SyncSender))}
	// The parent's cache must survive until a request carries it back.
	parentConfig := ipcq.DefaultActorConfig()
	parentConfig.FlushDelay = time.Minute
	h.parent = &parentActor{Actor: ipcq.NewActor("parent", parentEnd, h.parentLoop,
		ipcq.WithLogger(log.NewNop()), ipcq.WithReceiver(ipcq.SyncReceiver), ipcq.WithConfig(parentConfig))}
	return h
}

func (h *harness) onChild(t *testing.T, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, h.childLoop.Invoke(ctx, fn))
}

// forward builds a child-to-parent queue whose consumer is bound to the parent.
func (h *harness) forward(t *testing.T) (*ipcq.Producer[*childActor], *ipcq.Consumer[*parentActor]) {
	t.Helper()
	q := ipcq.New[*childActor, *parentActor](h.child)
	producer, consumer := q.TakeProducer(), q.TakeConsumer()
	require.NoError(t, consumer.Bind(h.parent))
	return producer, consumer
}

// backward builds a parent-to-child queue whose producer is bound to the parent.
func (h *harness) backward(t *testing.T) (*ipcq.Producer[*parentActor], *ipcq.Consumer[*childActor]) {
	t.Helper()
	q := ipcq.NewForConsumer[*parentActor, *childActor](h.child)
	producer, consumer := q.TakeProducer(), q.TakeConsumer()
	require.NoError(t, producer.Bind(h.parent))
	return producer, consumer
}

func drainInts[A ipcq.Host](c *ipcq.Consumer[A]) []int {
	var out []int
	for {
		var v int
		if !c.TryRemove(&v).IsSuccess() {
			return out
		}
		out = append(out, v)
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for the peer")
		var zero T
		return zero
	}
}

func runAsyncScenario(t *testing.T, h *harness) {
	producer, consumer := h.forward(t)
	received := make(chan []int, 8)
	h.parent.HandleQueue(producer.ID(), func() error {
		received <- drainInts(consumer)
		return nil
	})

	h.onChild(t, func() {
		assert.Equal(t, encoding.Success, producer.TryInsert(1, 2, 3))
	})
	assert.Equal(t, []int{1, 2, 3}, receive(t, received))

	h.onChild(t, func() {
		assert.Equal(t, encoding.Success, producer.TryInsertMode(ipcq.BufferedAsync, 4))
		assert.Equal(t, encoding.Success, producer.TryInsertMode(ipcq.BufferedAsync, 5))
	})
	assert.Equal(t, []int{4, 5}, receive(t, received), "buffered envelopes arrive merged after the flush delay")
}

func runSyncScenario(t *testing.T, h *harness) {
	reqProducer, reqConsumer := h.forward(t)
	respProducer, respConsumer := h.backward(t)
	cachedProducer, cachedConsumer := h.backward(t)

	h.parent.HandleQueue(reqProducer.ID(), func() error {
		var name string
		if st := reqConsumer.TryRemove(&name); !st.IsSuccess() {
			return fmt.Errorf("decode request: %s", st)
		}
		if st := respProducer.TryInsert("hello " + name); !st.IsSuccess() {
			return fmt.Errorf("write response: %s", st)
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, h.parentLoop.Invoke(ctx, func() {
		assert.Equal(t, encoding.Success, cachedProducer.TryInsertMode(ipcq.BufferedAsync, 7))
	}))

	h.onChild(t, func() {
		require.Equal(t, encoding.Success, reqProducer.TryInsertMode(ipcq.Sync, "child"))

		var greeting string
		assert.Equal(t, encoding.Success, respConsumer.TryRemove(&greeting))
		assert.Equal(t, "hello child", greeting)

		var cached int
		assert.Equal(t, encoding.Success, cachedConsumer.TryRemove(&cached))
		assert.Equal(t, 7, cached)
	})
}

func runOrderingScenario(t *testing.T, h *harness) {
	producer, consumer := h.forward(t)
	received := make(chan []int, 16)
	h.parent.HandleQueue(producer.ID(), func() error {
		if got := drainInts(consumer); len(got) > 0 {
			received <- got
		}
		return nil
	})

	modes := []ipcq.Mode{ipcq.BufferedAsync, ipcq.Async, ipcq.BufferedAsync, ipcq.Sync, ipcq.BufferedAsync, ipcq.Async}
	h.onChild(t, func() {
		for i, mode := range modes {
			require.Equal(t, encoding.Success, producer.TryInsertMode(mode, i))
		}
	})

	var got []int
	for len(got) < len(modes) {
		got = append(got, receive(t, received)...)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, got)
}

// runReplyOrderingScenario has the parent send async data while handling one
// message and answer a later request with more data on the same queue. The
// child must see the async data first.
func runReplyOrderingScenario(t *testing.T, h *harness) {
	pingProducer, pingConsumer := h.forward(t)
	reqProducer, reqConsumer := h.forward(t)
	dataProducer, dataConsumer := h.backward(t)

	h.parent.HandleQueue(pingProducer.ID(), func() error {
		drainInts(pingConsumer)
		if st := dataProducer.TryInsertMode(ipcq.Async, 1); !st.IsSuccess() {
			return fmt.Errorf("send data: %s", st)
		}
		return nil
	})
	h.parent.HandleQueue(reqProducer.ID(), func() error {
		drainInts(reqConsumer)
		if st := dataProducer.TryInsert(2); !st.IsSuccess() {
			return fmt.Errorf("write response: %s", st)
		}
		return nil
	})

	h.onChild(t, func() {
		require.Equal(t, encoding.Success, pingProducer.TryInsertMode(ipcq.Async, 0))
		require.Equal(t, encoding.Success, reqProducer.TryInsertMode(ipcq.Sync, 0))
		assert.Equal(t, []int{1, 2}, drainInts(dataConsumer))
	})

	h.onChild(t, func() {
		assert.Empty(t, drainInts(dataConsumer), "nothing is delivered twice")
	})
}
