package ipcq

// Mode selects how a producer's envelope is transmitted.
type Mode uint8

const (
	// Async sends the envelope immediately without waiting for a response.
	// Cached BufferedAsync data is flushed first.
	Async Mode = iota
	// BufferedAsync sends the envelope now or caches it for a later batch.
	// Envelopes may go out at any point in the future but are always processed
	// in order. Async and Sync transmissions force a flush of the cache, and a
	// delayed task flushes it otherwise.
	BufferedAsync
	// Sync sends the envelope immediately and waits for the response, which can
	// be read as soon as the transmission returns.
	Sync
)

func (m Mode) String() string {
	switch m {
	case Async:
		return "async"
	case BufferedAsync:
		return "buffered_async"
	case Sync:
		return "sync"
	default:
		return "unknown"
	}
}

// ModeSelector picks the mode for an argument list.
type ModeSelector func(args []any) Mode

func defaultModeSelector([]any) Mode { return Async }
