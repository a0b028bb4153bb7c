package encoding

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortEstimate claims one byte but writes many.
type shortEstimate struct {
	payload []byte
}

func (s shortEstimate) MinSize() int { return 1 }

func (s shortEstimate) MarshalQueue(w *ProducerView) Status {
	return w.Write(s.payload)
}

type point struct {
	X, Y int32
}

func (p point) Serialize() ([]byte, error) {
	w := NewProducerView(8)
	w.WriteUint32(uint32(p.X))
	w.WriteUint32(uint32(p.Y))
	return w.Take(), nil
}

func (p *point) Deserialize(data []byte) error {
	r := NewConsumerView(data)
	var x, y uint32
	r.ReadUint32(&x)
	r.ReadUint32(&y)
	if !r.Status().IsSuccess() || r.Remaining() != 0 {
		return errors.New("bad point")
	}
	p.X, p.Y = int32(x), int32(y)
	return nil
}

func TestProducerView_GrowsPastEstimate(t *testing.T) {
	arg := shortEstimate{payload: make([]byte, 100)}
	w := NewProducerView(MinSize(arg))

	require.Equal(t, Success, w.WriteParam(arg))
	require.Equal(t, Success, w.WriteParam(uint16(7)))
	assert.Equal(t, 102, w.Len())
}

func TestProducerView_LimitIsStickyOOM(t *testing.T) {
	w := NewProducerView(0)
	w.SetLimit(10)

	assert.Equal(t, OOMError, w.Reserve(11))
	assert.Equal(t, OOMError, w.WriteUint8(1), "the first failure sticks")

	w.Reset()
	w.SetLimit(10)
	require.Equal(t, Success, w.WriteUint64(1))
	assert.Equal(t, OOMError, w.WriteUint32(1))
	assert.Equal(t, 8, w.Len())

	w.Rewind()
	assert.Equal(t, Success, w.Status())
	assert.Equal(t, 0, w.Len())
}

func TestProducerView_TakeTransfersOwnership(t *testing.T) {
	w := NewProducerView(4)
	w.WriteUint32(0xdeadbeef)
	out := w.Take()

	assert.Len(t, out, 4)
	assert.Equal(t, 0, w.Len())
	w.WriteUint32(1)
	assert.Equal(t, []byte{0xef, 0xbe, 0xad, 0xde}, out, "later writes never alias taken bytes")
}

func TestParams_RoundTrip(t *testing.T) {
	args := []any{
		true, int8(-3), uint8(200), int16(-300), uint16(60000),
		int32(-70000), uint32(1 << 31), -5, int64(-1 << 40), uint(7), uint64(1 << 63),
		float32(1.5), 2.25, "hello", []byte{}, []byte{1, 2},
		[]int32{-1, 2}, []uint32{3}, []float32{0.5},
		point{X: -4, Y: 9}, OOMError,
	}
	w := NewProducerView(MinSizeOfArgs(args...))
	for _, arg := range args {
		require.Equal(t, Success, w.WriteParam(arg), "%T", arg)
	}

	var (
		b     bool
		i8    int8
		u8    uint8
		i16   int16
		u16   uint16
		i32   int32
		u32   uint32
		i     int
		i64   int64
		u     uint
		u64   uint64
		f32   float32
		f64   float64
		s     string
		empty []byte
		bs    []byte
		si32  []int32
		su32  []uint32
		sf32  []float32
		p     point
		st    Status
	)
	outs := []any{&b, &i8, &u8, &i16, &u16, &i32, &u32, &i, &i64, &u, &u64,
		&f32, &f64, &s, &empty, &bs, &si32, &su32, &sf32, &p, &st}

	r := NewConsumerView(w.Bytes())
	for _, out := range outs {
		require.Equal(t, Success, r.ReadParam(out), "%T", out)
	}
	assert.Equal(t, 0, r.Remaining())

	assert.True(t, b)
	assert.Equal(t, int8(-3), i8)
	assert.Equal(t, uint8(200), u8)
	assert.Equal(t, int16(-300), i16)
	assert.Equal(t, uint16(60000), u16)
	assert.Equal(t, int32(-70000), i32)
	assert.Equal(t, uint32(1<<31), u32)
	assert.Equal(t, -5, i)
	assert.Equal(t, int64(-1<<40), i64)
	assert.Equal(t, uint(7), u)
	assert.Equal(t, uint64(1<<63), u64)
	assert.Equal(t, float32(1.5), f32)
	assert.Equal(t, 2.25, f64)
	assert.Equal(t, "hello", s)
	assert.Nil(t, empty)
	assert.Equal(t, []byte{1, 2}, bs)
	assert.Equal(t, []int32{-1, 2}, si32)
	assert.Equal(t, []uint32{3}, su32)
	assert.Equal(t, []float32{0.5}, sf32)
	assert.Equal(t, point{X: -4, Y: 9}, p)
	assert.Equal(t, OOMError, st)
}

func TestConsumerView_ShortDataIsNotReady(t *testing.T) {
	w := NewProducerView(0)
	w.WriteString("abcdef")
	data := w.Bytes()

	for n := 0; n < len(data); n++ {
		var s string
		r := NewConsumerView(data[:n])
		assert.Equal(t, NotReady, r.ReadParam(&s), "prefix of %d bytes", n)
		assert.Equal(t, "", s)
	}

	var ints []int32
	w = NewProducerView(0)
	w.WriteUint32(1000)
	assert.Equal(t, NotReady, NewConsumerView(w.Bytes()).ReadParam(&ints))
	assert.Nil(t, ints)
}

func TestConsumerView_RejectsInvalidData(t *testing.T) {
	var b bool
	assert.Equal(t, FatalError, NewConsumerView([]byte{2}).ReadParam(&b))

	var st Status
	assert.Equal(t, FatalError, NewConsumerView([]byte{uint8(OOMError) + 1}).ReadParam(&st))
	assert.Equal(t, Success, st, "the target is untouched on failure")

	w := NewProducerView(0)
	w.WriteUint32(MaxParamLength + 1)
	var s string
	assert.Equal(t, FatalError, NewConsumerView(w.Bytes()).ReadParam(&s))

	var p point
	assert.Equal(t, FatalError, NewConsumerView([]byte{1, 0, 0, 0, 9}).ReadParam(&p))
}

func TestConsumerView_StatusIsSticky(t *testing.T) {
	r := NewConsumerView([]byte{1, 2})
	var v uint32
	assert.Equal(t, NotReady, r.ReadUint32(&v))

	var b uint8
	assert.Equal(t, NotReady, r.ReadUint8(&b))
	assert.Equal(t, 0, r.Consumed())
}

func TestWriteParam_Unsupported(t *testing.T) {
	w := NewProducerView(0)
	assert.Equal(t, FatalError, w.WriteParam(map[string]int{}))
	assert.Equal(t, FatalError, w.WriteParam(1), "failure is sticky")

	var m map[string]int
	assert.Equal(t, FatalError, NewConsumerView(nil).ReadParam(&m))
}

func TestStatus(t *testing.T) {
	assert.True(t, Success.IsSuccess())
	assert.False(t, NotReady.IsFatal())
	assert.False(t, TooSmall.IsFatal())
	assert.True(t, FatalError.IsFatal())
	assert.True(t, OOMError.IsFatal())
	assert.Equal(t, "not_ready", NotReady.String())
	assert.Equal(t, "unknown", Status(42).String())
}
