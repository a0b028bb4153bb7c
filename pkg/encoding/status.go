package encoding

// Status is the outcome of a queue read or write.
type Status uint8

const (
	// Success means the operation completed.
	Success Status = iota
	// NotReady means there was not enough data yet. The operation may succeed if
	// retried after the channel has delivered more.
	NotReady
	// TooSmall means the operation needs more room than the queue supports and
	// will always fail.
	TooSmall
	// FatalError means the queue is broken. Every value from here on is fatal.
	FatalError
	// OOMError means an allocation needed by the operation was refused.
	OOMError
)

// IsSuccess reports whether s is Success.
func (s Status) IsSuccess() bool { return s == Success }

// IsFatal reports whether s means the queue must not be used again.
func (s Status) IsFatal() bool { return s >= FatalError }

// String returns the status name
func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case NotReady:
		return "not_ready"
	case TooSmall:
		return "too_small"
	case FatalError:
		return "fatal_error"
	case OOMError:
		return "oom_error"
	default:
		return "unknown"
	}
}

// MinSize implements Marshaler.
func (s Status) MinSize() int { return 1 }

// MarshalQueue implements Marshaler.
func (s Status) MarshalQueue(w *ProducerView) Status {
	return w.WriteUint8(uint8(s))
}

// UnmarshalQueue implements Unmarshaler. Values outside the known range are
// rejected as a fatal decode error.
func (s *Status) UnmarshalQueue(r *ConsumerView) Status {
	var v uint8
	if st := r.ReadUint8(&v); !st.IsSuccess() {
		return st
	}
	if Status(v) > OOMError {
		return r.fail(FatalError)
	}
	*s = Status(v)
	return Success
}
