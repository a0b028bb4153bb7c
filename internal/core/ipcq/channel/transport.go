package channel

import (
	"context"

	"github.com/pkg/errors"

	"github.com/zeusync/ipcq/internal/config"
	"github.com/zeusync/ipcq/internal/core/observability/log"
)

// Listener accepts network connections for Remote channels.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() string
	Close() error
}

var (
	_ Listener = (*WebSocketListener)(nil)
	_ Listener = (*QUICListener)(nil)
)

// ErrTransportNotSupported is returned for transports without a network side.
var ErrTransportNotSupported = errors.New("transport not supported")

// Listen opens a listener for the configured network transport.
func Listen(tc config.TransportConfig, logger log.Log) (Listener, error) {
	opts := ConnOptionsFrom(tc)
	switch tc.Kind {
	case config.TransportWebSocket:
		l, err := ListenWebSocket(tc.Address, tc.Path, opts, logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	case config.TransportQUIC:
		l, err := ListenQUIC(tc.Address, nil, opts)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, errors.Wrapf(ErrTransportNotSupported, "listen on %q", tc.Kind)
	}
}

// Dial connects to a listener opened with the same configuration.
func Dial(ctx context.Context, tc config.TransportConfig) (Conn, error) {
	opts := ConnOptionsFrom(tc)
	switch tc.Kind {
	case config.TransportWebSocket:
		conn, err := DialWebSocket(ctx, "ws://"+tc.Address+tc.Path, opts)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case config.TransportQUIC:
		conn, err := DialQUIC(ctx, tc.Address, nil, opts)
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		return nil, errors.Wrapf(ErrTransportNotSupported, "dial %q", tc.Kind)
	}
}
