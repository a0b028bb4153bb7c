package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/ipcq/internal/core/ipcq"
	"github.com/zeusync/ipcq/pkg/encoding"
)

func encodeTestFrame(t *testing.T, f frame) []byte {
	t.Helper()
	w := encoding.NewProducerView(0)
	require.NoError(t, encodeFrame(w, f, 0))
	return w.Take()
}

func TestFrame_RoundTrip(t *testing.T) {
	in := frame{
		kind: frameReply,
		seq:  77,
		envelopes: ipcq.EnvelopeSet{
			{ID: 1, Data: []byte("first")},
			{ID: 2},
			{ID: 3, Data: []byte{0xff}},
		},
	}
	data := encodeTestFrame(t, in)
	assert.Equal(t, frameHeaderSize+frameChecksumSize+3*envelopeHeaderSize+6, len(data))

	out, err := decodeFrame(data, 0)
	require.NoError(t, err)
	assert.Equal(t, in.kind, out.kind)
	assert.Equal(t, in.seq, out.seq)
	require.Len(t, out.envelopes, 3)
	assert.Equal(t, []byte("first"), out.envelopes[0].Data)
	assert.True(t, out.envelopes[1].Empty())
	assert.Equal(t, ipcq.ID(3), out.envelopes[2].ID)
}

func TestFrame_Failure(t *testing.T) {
	data := encodeTestFrame(t, frame{kind: frameFailure, seq: 4, reason: "queue 9: reject"})
	assert.Equal(t, frameHeaderSize+frameChecksumSize+4+len("queue 9: reject"), len(data))

	out, err := decodeFrame(data, 0)
	require.NoError(t, err)
	assert.Equal(t, frameFailure, out.kind)
	assert.Equal(t, uint64(4), out.seq)
	assert.Empty(t, out.envelopes)
	assert.Equal(t, "queue 9: reject", out.reason)

	out, err = decodeFrame(encodeTestFrame(t, frame{kind: frameFailure}), 0)
	require.NoError(t, err)
	assert.Empty(t, out.reason)

	w := encoding.NewProducerView(0)
	err = encodeFrame(w, frame{kind: frameFailure, envelopes: ipcq.EnvelopeSet{{ID: 1}}}, 0)
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestFrame_RejectsCorruption(t *testing.T) {
	valid := encodeTestFrame(t, frame{
		kind:      frameTransmit,
		envelopes: ipcq.EnvelopeSet{{ID: 9, Data: []byte("payload")}},
	})

	flipped := append([]byte(nil), valid...)
	flipped[frameHeaderSize+2] ^= 0x01
	_, err := decodeFrame(flipped, 0)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	_, err = decodeFrame(valid[:10], 0)
	assert.ErrorIs(t, err, ipcq.ErrProtocolViolation)

	_, err = decodeFrame(valid, 16)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFrame_RejectsMalformedBodies(t *testing.T) {
	withChecksum := func(body func(w *encoding.ProducerView)) []byte {
		w := encoding.NewProducerView(64)
		body(w)
		raw := w.Take()
		sealed := encoding.NewProducerView(len(raw) + frameChecksumSize)
		sealed.Write(raw)
		sealed.WriteUint64(checksum(raw))
		return sealed.Take()
	}

	cases := map[string]func(w *encoding.ProducerView){
		"unknown kind": func(w *encoding.ProducerView) {
			w.WriteUint8(9)
			w.WriteUint64(0)
			w.WriteUint32(0)
		},
		"count larger than body": func(w *encoding.ProducerView) {
			w.WriteUint8(uint8(frameTransmit))
			w.WriteUint64(0)
			w.WriteUint32(1000)
		},
		"trailing bytes": func(w *encoding.ProducerView) {
			w.WriteUint8(uint8(frameTransmit))
			w.WriteUint64(0)
			w.WriteUint32(0)
			w.WriteUint8(1)
		},
		"failure without reason": func(w *encoding.ProducerView) {
			w.WriteUint8(uint8(frameFailure))
			w.WriteUint64(0)
			w.WriteUint32(0)
		},
		"failure with envelopes": func(w *encoding.ProducerView) {
			w.WriteUint8(uint8(frameFailure))
			w.WriteUint64(0)
			w.WriteUint32(1)
			w.WriteUint64(1)
			w.WriteBytes(nil)
			w.WriteString("")
		},
		"illegal id": func(w *encoding.ProducerView) {
			w.WriteUint8(uint8(frameTransmit))
			w.WriteUint64(0)
			w.WriteUint32(1)
			w.WriteUint64(0)
			w.WriteBytes(nil)
		},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeFrame(withChecksum(body), 0)
			assert.ErrorIs(t, err, ErrInvalidFrame)
		})
	}
}

func TestFrame_EncodeRespectsLimit(t *testing.T) {
	w := encoding.NewProducerView(0)
	err := encodeFrame(w, frame{
		kind:      frameTransmit,
		envelopes: ipcq.EnvelopeSet{{ID: 1, Data: make([]byte, 100)}},
	}, 64)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Equal(t, 0, w.Len())
}
