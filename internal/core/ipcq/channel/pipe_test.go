package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/ipcq/internal/core/ipcq"
	"github.com/zeusync/ipcq/internal/core/ipcq/shm"
	"github.com/zeusync/ipcq/internal/core/observability/log"
	"github.com/zeusync/ipcq/pkg/encoding"
)

func newPipeHarness(t *testing.T, opts ...PipeOption) (*harness, *Pipe) {
	a, b := NewPipe(append([]PipeOption{WithPipeLogger(log.NewNop())}, opts...)...)
	t.Cleanup(func() { _ = a.Close() })
	return newHarness(t, a, b), a
}

func TestPipe_Async(t *testing.T) {
	h, _ := newPipeHarness(t)
	runAsyncScenario(t, h)
}

func TestPipe_Sync(t *testing.T) {
	h, _ := newPipeHarness(t)
	runSyncScenario(t, h)
}

func TestPipe_OrderAcrossModes(t *testing.T) {
	h, _ := newPipeHarness(t)
	runOrderingScenario(t, h)
}

func TestPipe_ReplyFollowsEarlierTransmits(t *testing.T) {
	h, _ := newPipeHarness(t)
	runReplyOrderingScenario(t, h)
}

func TestPipe_HandlerErrorClosesChannel(t *testing.T) {
	h, pipe := newPipeHarness(t)
	producer, _ := h.forward(t)
	h.parent.HandleQueue(producer.ID(), func() error { return errors.New("reject") })

	h.onChild(t, func() {
		assert.Equal(t, encoding.Success, producer.TryInsert(1))
	})
	receive(t, pipe.Closed())

	h.onChild(t, func() {
		assert.Equal(t, encoding.FatalError, producer.TryInsert(2))
	})
}

func TestPipe_UnboundPeer(t *testing.T) {
	a, b := NewPipe(WithPipeLogger(log.NewNop()))
	defer a.Close()

	assert.ErrorIs(t, a.SendEnvelope(context.Background(), ipcq.Envelope{ID: 1}), ipcq.ErrChannelNotBound)
	_, err := b.ExchangeEnvelope(context.Background(), ipcq.Envelope{ID: 1})
	assert.ErrorIs(t, err, ipcq.ErrChannelNotBound)
}

func TestPipe_CloseFailsPendingExchange(t *testing.T) {
	h, pipe := newPipeHarness(t)
	producer, _ := h.forward(t)

	blocked := make(chan struct{})
	release := make(chan struct{})
	h.parent.HandleQueue(producer.ID(), func() error {
		close(blocked)
		<-release
		return nil
	})
	defer close(release)

	result := make(chan encoding.Status, 1)
	require.NoError(t, h.childLoop.Post(func() {
		result <- producer.TryInsertMode(ipcq.Sync, 1)
	}))

	receive(t, blocked)
	require.NoError(t, pipe.Close())
	assert.Equal(t, encoding.FatalError, receive(t, result))
}

func TestPipe_SharedBuffers(t *testing.T) {
	h, _ := newPipeHarness(t, WithSharedMemory(shm.Allocator{MaxSize: 1 << 20}))
	producer, _ := h.forward(t)

	h.onChild(t, func() {
		buf, st := producer.AllocSharedBuffer(1<<12, nil)
		require.Equal(t, encoding.Success, st)
		assert.Equal(t, 1<<12, buf.Len())
		assert.NoError(t, buf.Close())

		_, st = producer.AllocSharedBuffer(1<<21, nil)
		assert.Equal(t, encoding.OOMError, st)
	})
}

func TestPipe_DestroyedActorStopsFlush(t *testing.T) {
	h, a := newPipeHarness(t)
	producer, _ := h.forward(t)

	h.onChild(t, func() {
		require.Equal(t, encoding.Success, producer.TryInsertMode(ipcq.BufferedAsync, 1))
		h.child.Destroy()
	})

	time.Sleep(50 * time.Millisecond)
	select {
	case <-a.Closed():
		t.Fatal("pipe closed")
	default:
	}
	h.onChild(t, func() {
		assert.Equal(t, encoding.FatalError, producer.TryInsert(2))
	})
}
