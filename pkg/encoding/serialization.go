package encoding

// Serializable provides a clean, simple interface for serializing and deserializing values.
// Queue parameters that implement it travel as one length-prefixed blob.
type Serializable[T any] interface {
	Serialize() ([]byte, error)
	Deserialize([]byte) error
}

// Marshaler is implemented by parameter types that write themselves into a queue.
//
// MinSize is a lower bound used to size the buffer up front. Writes past it are
// allowed and grow the buffer, so variable-length types may return their fixed
// part only.
type Marshaler interface {
	MinSize() int
	MarshalQueue(w *ProducerView) Status
}

// Unmarshaler is implemented by pointer types that read themselves from a queue.
// On any status other than Success the value must be left unchanged or be
// discarded by the caller.
type Unmarshaler interface {
	UnmarshalQueue(r *ConsumerView) Status
}

type serializer interface {
	Serialize() ([]byte, error)
}

type deserializer interface {
	Deserialize([]byte) error
}

const lengthPrefix = 4

// MinSize returns the size estimate for one parameter.
func MinSize(arg any) int {
	switch v := arg.(type) {
	case Marshaler:
		return v.MinSize()
	case bool, int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32, float32:
		return 4
	case int, int64, uint, uint64, float64:
		return 8
	case string:
		return lengthPrefix + len(v)
	case []byte:
		return lengthPrefix + len(v)
	case []int32:
		return lengthPrefix + 4*len(v)
	case []uint32:
		return lengthPrefix + 4*len(v)
	case []float32:
		return lengthPrefix + 4*len(v)
	case serializer:
		return lengthPrefix
	default:
		return 0
	}
}

// MinSizeOfArgs sums MinSize over args.
func MinSizeOfArgs(args ...any) int {
	total := 0
	for _, arg := range args {
		total += MinSize(arg)
	}
	return total
}

// WriteParam serializes one parameter. Unsupported types are fatal.
func (v *ProducerView) WriteParam(arg any) Status {
	if v.status != Success {
		return v.status
	}
	switch x := arg.(type) {
	case Marshaler:
		return x.MarshalQueue(v)
	case bool:
		return v.WriteBool(x)
	case int8:
		return v.WriteUint8(uint8(x))
	case uint8:
		return v.WriteUint8(x)
	case int16:
		return v.WriteUint16(uint16(x))
	case uint16:
		return v.WriteUint16(x)
	case int32:
		return v.WriteUint32(uint32(x))
	case uint32:
		return v.WriteUint32(x)
	case int:
		return v.WriteUint64(uint64(int64(x)))
	case int64:
		return v.WriteUint64(uint64(x))
	case uint:
		return v.WriteUint64(uint64(x))
	case uint64:
		return v.WriteUint64(x)
	case float32:
		return v.WriteFloat32(x)
	case float64:
		return v.WriteFloat64(x)
	case string:
		return v.WriteString(x)
	case []byte:
		return v.WriteBytes(x)
	case []int32:
		return writeSlice(v, x, func(e int32) Status { return v.WriteUint32(uint32(e)) })
	case []uint32:
		return writeSlice(v, x, v.WriteUint32)
	case []float32:
		return writeSlice(v, x, v.WriteFloat32)
	case serializer:
		data, err := x.Serialize()
		if err != nil {
			return v.fail(FatalError)
		}
		return v.WriteBytes(data)
	default:
		return v.fail(FatalError)
	}
}

// ReadParam deserializes one parameter into out, which must be a pointer.
func (v *ConsumerView) ReadParam(out any) Status {
	if v.status != Success {
		return v.status
	}
	switch x := out.(type) {
	case Unmarshaler:
		return x.UnmarshalQueue(v)
	case *bool:
		return v.ReadBool(x)
	case *int8:
		var u uint8
		return assign(v.ReadUint8(&u), func() { *x = int8(u) })
	case *uint8:
		return v.ReadUint8(x)
	case *int16:
		var u uint16
		return assign(v.ReadUint16(&u), func() { *x = int16(u) })
	case *uint16:
		return v.ReadUint16(x)
	case *int32:
		var u uint32
		return assign(v.ReadUint32(&u), func() { *x = int32(u) })
	case *uint32:
		return v.ReadUint32(x)
	case *int:
		var u uint64
		return assign(v.ReadUint64(&u), func() { *x = int(int64(u)) })
	case *int64:
		var u uint64
		return assign(v.ReadUint64(&u), func() { *x = int64(u) })
	case *uint:
		var u uint64
		return assign(v.ReadUint64(&u), func() { *x = uint(u) })
	case *uint64:
		return v.ReadUint64(x)
	case *float32:
		return v.ReadFloat32(x)
	case *float64:
		return v.ReadFloat64(x)
	case *string:
		return v.ReadString(x)
	case *[]byte:
		return v.ReadBytes(x)
	case *[]int32:
		return readSlice(v, x, 4, func(e *int32) Status {
			var u uint32
			return assign(v.ReadUint32(&u), func() { *e = int32(u) })
		})
	case *[]uint32:
		return readSlice(v, x, 4, v.ReadUint32)
	case *[]float32:
		return readSlice(v, x, 4, v.ReadFloat32)
	case deserializer:
		var data []byte
		if st := v.ReadBytes(&data); !st.IsSuccess() {
			return st
		}
		if err := x.Deserialize(data); err != nil {
			return v.fail(FatalError)
		}
		return Success
	default:
		return v.fail(FatalError)
	}
}

func assign(st Status, set func()) Status {
	if st.IsSuccess() {
		set()
	}
	return st
}

func writeSlice[T any](v *ProducerView, s []T, put func(T) Status) Status {
	if len(s) > MaxParamLength {
		return v.fail(TooSmall)
	}
	if st := v.WriteUint32(uint32(len(s))); !st.IsSuccess() {
		return st
	}
	for _, e := range s {
		if st := put(e); !st.IsSuccess() {
			return st
		}
	}
	return Success
}

func readSlice[T any](v *ConsumerView, out *[]T, elemSize int, get func(*T) Status) Status {
	var n uint32
	if st := v.ReadUint32(&n); !st.IsSuccess() {
		return st
	}
	if int(n) > MaxParamLength/elemSize {
		return v.fail(FatalError)
	}
	// Check availability before allocating so a short buffer costs nothing.
	if v.Remaining() < int(n)*elemSize {
		return v.fail(NotReady)
	}
	s := make([]T, n)
	for i := range s {
		if st := get(&s[i]); !st.IsSuccess() {
			return st
		}
	}
	*out = s
	return Success
}
