package ipcq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/ipcq/pkg/encoding"
)

func TestEnvelopeSet_Merge(t *testing.T) {
	var set EnvelopeSet
	set.Merge(Envelope{ID: 1, Data: []byte{1}})
	set.Merge(Envelope{ID: 2, Data: []byte{2}})
	set.Merge(Envelope{ID: 1, Data: []byte{3, 4}})
	set.Merge(Envelope{ID: 3})

	require.Len(t, set, 3)
	assert.Equal(t, ID(1), set[0].ID)
	assert.Equal(t, []byte{1, 3, 4}, set[0].Data)
	assert.Equal(t, ID(2), set[1].ID)
	assert.Equal(t, ID(3), set[2].ID)
	assert.True(t, set[2].Empty())
	assert.Equal(t, 4, set.Size())

	assert.Nil(t, set.Find(9))
	assert.Equal(t, []byte{2}, set.Find(2).Data)
}

func TestEnvelope_QueueEncoding(t *testing.T) {
	in := Envelope{ID: 42, Data: []byte("payload")}
	w := encoding.NewProducerView(in.MinSize())
	require.Equal(t, encoding.Success, w.WriteParam(in))
	assert.Equal(t, in.MinSize(), w.Len())

	var out Envelope
	require.Equal(t, encoding.Success, encoding.NewConsumerView(w.Bytes()).ReadParam(&out))
	assert.Equal(t, in, out)
}

func TestNewID_IsNeverIllegal(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEqual(t, IllegalID, a)
	assert.Greater(t, uint64(b), uint64(a))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, encoding.Success, StatusOf(nil))
	assert.Equal(t, encoding.OOMError, StatusOf(NewError(ErrorCodeChannelUnsupported, "shm", ErrChannelUnsupported)))
	assert.Equal(t, encoding.FatalError, StatusOf(ErrChannelClosed))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrorCodeSuccess, GetErrorCode(nil))
	assert.Equal(t, ErrorCodeNoHandler, GetErrorCode(ErrNoHandler))
	assert.Equal(t, ErrorCodeStoreFailed, GetErrorCode(NewError(ErrorCodeStoreFailed, "q", nil)))
	assert.Equal(t, ErrorCodeUnknownError, GetErrorCode(assert.AnError))

	err := WrapError(ErrProtocolViolation, "bad frame")
	assert.True(t, err.IsFatal())
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.False(t, NewError(ErrorCodeChannelClosed, "closed", nil).IsFatal())
}
