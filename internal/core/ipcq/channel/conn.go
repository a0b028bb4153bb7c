package channel

import (
	"io"
	"time"

	"github.com/zeusync/ipcq/internal/config"
)

// Conn is a message-oriented, ordered, reliable byte transport. Send and
// Receive may be called from different goroutines, but each only from one at
// a time.
type Conn interface {
	ID() string
	RemoteAddr() string
	Send([]byte) error
	Receive() ([]byte, error)
	io.Closer
}

// ConnOptions configures the network Conn implementations.
type ConnOptions struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxFrameSize int
}

// ConnOptionsFrom converts the transport section of the process config.
func ConnOptionsFrom(tc config.TransportConfig) ConnOptions {
	return ConnOptions{
		ReadTimeout:  tc.ReadTimeout,
		WriteTimeout: tc.WriteTimeout,
		MaxFrameSize: tc.MaxFrameSize,
	}
}
