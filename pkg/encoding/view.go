package encoding

import (
	"encoding/binary"
	"math"
)

// MaxParamLength bounds a single length-prefixed parameter. A larger prefix can
// only come from a corrupt stream, so reading it is fatal rather than NotReady.
const MaxParamLength = 64 << 20

var order = binary.LittleEndian

// ProducerView is the write cursor handed to Marshaler implementations.
// The first error is sticky: once a write fails every later write returns the
// same status and changes nothing.
type ProducerView struct {
	buf    []byte
	write  int
	limit  int
	status Status
}

// NewProducerView creates a view with an initial capacity of size bytes.
func NewProducerView(size int) *ProducerView {
	v := &ProducerView{}
	v.Reserve(size)
	return v
}

// SetLimit caps the total number of bytes the view may hold. Zero disables the cap.
func (v *ProducerView) SetLimit(limit int) {
	v.limit = limit
}

// Reserve sizes the buffer for an estimated total. The estimate is a lower
// bound: writes past it grow the buffer.
func (v *ProducerView) Reserve(size int) Status {
	if v.status != Success {
		return v.status
	}
	if v.limit > 0 && size > v.limit {
		return v.fail(OOMError)
	}
	if size > len(v.buf) {
		grown := make([]byte, size)
		copy(grown, v.buf[:v.write])
		v.buf = grown
	}
	return Success
}

// Write copies p at the write offset.
func (v *ProducerView) Write(p []byte) Status {
	dst, st := v.next(len(p))
	if !st.IsSuccess() {
		return st
	}
	copy(dst, p)
	return Success
}

func (v *ProducerView) WriteUint8(x uint8) Status {
	dst, st := v.next(1)
	if !st.IsSuccess() {
		return st
	}
	dst[0] = x
	return Success
}

func (v *ProducerView) WriteUint16(x uint16) Status {
	dst, st := v.next(2)
	if !st.IsSuccess() {
		return st
	}
	order.PutUint16(dst, x)
	return Success
}

func (v *ProducerView) WriteUint32(x uint32) Status {
	dst, st := v.next(4)
	if !st.IsSuccess() {
		return st
	}
	order.PutUint32(dst, x)
	return Success
}

func (v *ProducerView) WriteUint64(x uint64) Status {
	dst, st := v.next(8)
	if !st.IsSuccess() {
		return st
	}
	order.PutUint64(dst, x)
	return Success
}

func (v *ProducerView) WriteBool(x bool) Status {
	if x {
		return v.WriteUint8(1)
	}
	return v.WriteUint8(0)
}

func (v *ProducerView) WriteFloat32(x float32) Status {
	return v.WriteUint32(math.Float32bits(x))
}

func (v *ProducerView) WriteFloat64(x float64) Status {
	return v.WriteUint64(math.Float64bits(x))
}

// WriteBytes writes a uint32 length prefix followed by p.
func (v *ProducerView) WriteBytes(p []byte) Status {
	if len(p) > MaxParamLength {
		return v.fail(TooSmall)
	}
	if st := v.WriteUint32(uint32(len(p))); !st.IsSuccess() {
		return st
	}
	return v.Write(p)
}

// WriteString writes s like WriteBytes.
func (v *ProducerView) WriteString(s string) Status {
	if len(s) > MaxParamLength {
		return v.fail(TooSmall)
	}
	if st := v.WriteUint32(uint32(len(s))); !st.IsSuccess() {
		return st
	}
	dst, st := v.next(len(s))
	if !st.IsSuccess() {
		return st
	}
	copy(dst, s)
	return Success
}

// Status returns the sticky status of the view.
func (v *ProducerView) Status() Status { return v.status }

// Len returns the number of bytes written.
func (v *ProducerView) Len() int { return v.write }

// Bytes returns the written bytes without transferring ownership.
func (v *ProducerView) Bytes() []byte { return v.buf[:v.write] }

// Take moves the written bytes out of the view and resets it.
func (v *ProducerView) Take() []byte {
	out := v.buf[:v.write:v.write]
	v.buf = nil
	v.write = 0
	v.status = Success
	return out
}

// Reset drops everything written and clears the status.
func (v *ProducerView) Reset() {
	v.buf = nil
	v.write = 0
	v.status = Success
}

// Rewind drops everything written but keeps the buffer for reuse.
func (v *ProducerView) Rewind() {
	v.write = 0
	v.status = Success
}

func (v *ProducerView) next(n int) ([]byte, Status) {
	if v.status != Success {
		return nil, v.status
	}
	end := v.write + n
	if v.limit > 0 && end > v.limit {
		return nil, v.fail(OOMError)
	}
	if end > len(v.buf) {
		// Estimate was short; grow to what this write needs.
		size := 2 * len(v.buf)
		if size < end {
			size = end
		}
		if v.limit > 0 && size > v.limit {
			size = v.limit
		}
		grown := make([]byte, size)
		copy(grown, v.buf[:v.write])
		v.buf = grown
	}
	dst := v.buf[v.write:end]
	v.write = end
	return dst, Success
}

func (v *ProducerView) fail(st Status) Status {
	if v.status == Success {
		v.status = st
	}
	return v.status
}

// ConsumerView is the read cursor handed to Unmarshaler implementations.
// Reads never modify the underlying bytes; the caller decides from Consumed
// how much to discard once every parameter has been read.
type ConsumerView struct {
	data   []byte
	read   int
	status Status
}

// NewConsumerView reads from data.
func NewConsumerView(data []byte) *ConsumerView {
	return &ConsumerView{data: data}
}

// ReadRange returns the next n bytes. The slice aliases the view's data.
func (v *ConsumerView) ReadRange(n int) ([]byte, Status) {
	if v.status != Success {
		return nil, v.status
	}
	if n < 0 || n > MaxParamLength {
		return nil, v.fail(FatalError)
	}
	if len(v.data)-v.read < n {
		return nil, v.fail(NotReady)
	}
	out := v.data[v.read : v.read+n]
	v.read += n
	return out, Success
}

// Read fills p.
func (v *ConsumerView) Read(p []byte) Status {
	src, st := v.ReadRange(len(p))
	if !st.IsSuccess() {
		return st
	}
	copy(p, src)
	return Success
}

func (v *ConsumerView) ReadUint8(out *uint8) Status {
	src, st := v.ReadRange(1)
	if !st.IsSuccess() {
		return st
	}
	*out = src[0]
	return Success
}

func (v *ConsumerView) ReadUint16(out *uint16) Status {
	src, st := v.ReadRange(2)
	if !st.IsSuccess() {
		return st
	}
	*out = order.Uint16(src)
	return Success
}

func (v *ConsumerView) ReadUint32(out *uint32) Status {
	src, st := v.ReadRange(4)
	if !st.IsSuccess() {
		return st
	}
	*out = order.Uint32(src)
	return Success
}

func (v *ConsumerView) ReadUint64(out *uint64) Status {
	src, st := v.ReadRange(8)
	if !st.IsSuccess() {
		return st
	}
	*out = order.Uint64(src)
	return Success
}

// ReadBool accepts only 0 and 1.
func (v *ConsumerView) ReadBool(out *bool) Status {
	var b uint8
	if st := v.ReadUint8(&b); !st.IsSuccess() {
		return st
	}
	if b > 1 {
		return v.fail(FatalError)
	}
	*out = b == 1
	return Success
}

func (v *ConsumerView) ReadFloat32(out *float32) Status {
	var bits uint32
	if st := v.ReadUint32(&bits); !st.IsSuccess() {
		return st
	}
	*out = math.Float32frombits(bits)
	return Success
}

func (v *ConsumerView) ReadFloat64(out *float64) Status {
	var bits uint64
	if st := v.ReadUint64(&bits); !st.IsSuccess() {
		return st
	}
	*out = math.Float64frombits(bits)
	return Success
}

// ReadBytes reads a length-prefixed byte slice into a fresh copy.
func (v *ConsumerView) ReadBytes(out *[]byte) Status {
	src, st := v.readPrefixed()
	if !st.IsSuccess() {
		return st
	}
	if len(src) == 0 {
		*out = nil
		return Success
	}
	*out = append([]byte(nil), src...)
	return Success
}

func (v *ConsumerView) ReadString(out *string) Status {
	src, st := v.readPrefixed()
	if !st.IsSuccess() {
		return st
	}
	*out = string(src)
	return Success
}

// Status returns the sticky status of the view.
func (v *ConsumerView) Status() Status { return v.status }

// Consumed returns the number of bytes read so far.
func (v *ConsumerView) Consumed() int { return v.read }

// Remaining returns the number of unread bytes.
func (v *ConsumerView) Remaining() int { return len(v.data) - v.read }

func (v *ConsumerView) readPrefixed() ([]byte, Status) {
	var n uint32
	if st := v.ReadUint32(&n); !st.IsSuccess() {
		return nil, st
	}
	return v.ReadRange(int(n))
}

func (v *ConsumerView) fail(st Status) Status {
	if v.status == Success {
		v.status = st
	}
	return v.status
}
