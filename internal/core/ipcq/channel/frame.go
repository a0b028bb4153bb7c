package channel

import (
	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/zeusync/ipcq/internal/core/ipcq"
	"github.com/zeusync/ipcq/pkg/encoding"
	"github.com/zeusync/ipcq/pkg/generic"
)

type frameKind uint8

const (
	frameTransmit frameKind = 1
	frameExchange frameKind = 2
	frameReply    frameKind = 3
	frameFailure  frameKind = 4
)

func (k frameKind) String() string {
	switch k {
	case frameTransmit:
		return "transmit"
	case frameExchange:
		return "exchange"
	case frameReply:
		return "reply"
	case frameFailure:
		return "failure"
	default:
		return "unknown"
	}
}

const (
	frameHeaderSize   = 1 + 8 + 4
	frameChecksumSize = 8
	// id plus length prefix
	envelopeHeaderSize = 8 + 4
	// longest failure reason sent to a peer
	maxFailureReason = 1024
)

var (
	ErrInvalidFrame     = errors.Wrap(ipcq.ErrProtocolViolation, "invalid frame")
	ErrFrameTooLarge    = errors.Wrap(ipcq.ErrProtocolViolation, "frame too large")
	ErrChecksumMismatch = errors.Wrap(ipcq.ErrProtocolViolation, "checksum mismatch")
)

// frame is the unit written to a Conn:
//
//	kind u8 | seq u64 | count u32 | count * (id u64 | len u32 | payload) | xxhash64 u64
//
// Failure frames carry no envelopes and append the reason as len u32 | text
// before the checksum. All integers are little-endian. The checksum covers
// everything before it.
type frame struct {
	kind      frameKind
	seq       uint64
	envelopes ipcq.EnvelopeSet
	reason    string
}

var frameBuffers = generic.NewResetPool(
	func() *encoding.ProducerView { return encoding.NewProducerView(4096) },
	(*encoding.ProducerView).Rewind,
)

// encodeFrame writes f into w. maxSize of zero disables the size check.
func encodeFrame(w *encoding.ProducerView, f frame, maxSize int) error {
	size := frameHeaderSize + frameChecksumSize
	for i := range f.envelopes {
		size += envelopeHeaderSize + len(f.envelopes[i].Data)
	}
	if f.kind == frameFailure {
		if len(f.envelopes) != 0 {
			return errors.Wrapf(ErrInvalidFrame, "failure frame carries %d envelopes", len(f.envelopes))
		}
		size += 4 + len(f.reason)
	}
	if maxSize > 0 && size > maxSize {
		return errors.Wrapf(ErrFrameTooLarge, "%s frame of %d bytes, limit %d", f.kind, size, maxSize)
	}

	w.Reserve(size)
	w.WriteUint8(uint8(f.kind))
	w.WriteUint64(f.seq)
	w.WriteUint32(uint32(len(f.envelopes)))
	for i := range f.envelopes {
		f.envelopes[i].MarshalQueue(w)
	}
	if f.kind == frameFailure {
		w.WriteString(f.reason)
	}
	if st := w.Status(); !st.IsSuccess() {
		return errors.Wrapf(ErrInvalidFrame, "encode %s frame: %s", f.kind, st)
	}

	w.WriteUint64(checksum(w.Bytes()))
	return nil
}

func checksum(body []byte) uint64 {
	return xxhash.Sum64(body)
}

func decodeFrame(data []byte, maxSize int) (frame, error) {
	if maxSize > 0 && len(data) > maxSize {
		return frame{}, errors.Wrapf(ErrFrameTooLarge, "%d bytes, limit %d", len(data), maxSize)
	}
	if len(data) < frameHeaderSize+frameChecksumSize {
		return frame{}, errors.Wrapf(ErrInvalidFrame, "%d bytes is shorter than a header", len(data))
	}

	body := data[:len(data)-frameChecksumSize]
	var sum uint64
	encoding.NewConsumerView(data[len(body):]).ReadUint64(&sum)
	if checksum(body) != sum {
		return frame{}, ErrChecksumMismatch
	}

	r := encoding.NewConsumerView(body)
	var kind uint8
	var f frame
	var count uint32
	r.ReadUint8(&kind)
	r.ReadUint64(&f.seq)
	r.ReadUint32(&count)
	if st := r.Status(); !st.IsSuccess() {
		return frame{}, errors.Wrapf(ErrInvalidFrame, "header: %s", st)
	}

	f.kind = frameKind(kind)
	if f.kind < frameTransmit || f.kind > frameFailure {
		return frame{}, errors.Wrapf(ErrInvalidFrame, "unknown kind %d", kind)
	}
	if int(count) > r.Remaining()/envelopeHeaderSize {
		return frame{}, errors.Wrapf(ErrInvalidFrame, "%d envelopes cannot fit in %d bytes", count, r.Remaining())
	}

	if count > 0 {
		f.envelopes = make(ipcq.EnvelopeSet, count)
	}
	for i := range f.envelopes {
		if st := f.envelopes[i].UnmarshalQueue(r); !st.IsSuccess() {
			return frame{}, errors.Wrapf(ErrInvalidFrame, "envelope %d: %s", i, st)
		}
		if f.envelopes[i].ID == ipcq.IllegalID {
			return frame{}, errors.Wrapf(ErrInvalidFrame, "envelope %d has an illegal id", i)
		}
	}
	if f.kind == frameFailure {
		if count != 0 {
			return frame{}, errors.Wrapf(ErrInvalidFrame, "failure frame carries %d envelopes", count)
		}
		if st := r.ReadString(&f.reason); !st.IsSuccess() {
			return frame{}, errors.Wrapf(ErrInvalidFrame, "failure reason: %s", st)
		}
	}
	if r.Remaining() != 0 {
		return frame{}, errors.Wrapf(ErrInvalidFrame, "%d trailing bytes", r.Remaining())
	}
	return f, nil
}
