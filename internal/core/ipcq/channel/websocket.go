package channel

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/ipcq/internal/core/observability/log"
)

var _ Conn = (*WebSocketConn)(nil)

// WebSocketConn carries one frame per binary WebSocket message.
type WebSocketConn struct {
	id     string
	conn   *websocket.Conn
	opts   ConnOptions
	closed atomic.Bool

	// Write mutex to ensure thread-safe writes
	writeMu sync.Mutex
}

// NewWebSocketConn wraps an established WebSocket connection.
func NewWebSocketConn(conn *websocket.Conn, opts ConnOptions) *WebSocketConn {
	if opts.MaxFrameSize > 0 {
		conn.SetReadLimit(int64(opts.MaxFrameSize))
	}
	return &WebSocketConn{
		id:   uuid.New().String(),
		conn: conn,
		opts: opts,
	}
}

// DialWebSocket connects to a ws:// or wss:// URL.
func DialWebSocket(ctx context.Context, url string, opts ConnOptions) (*WebSocketConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", url)
	}
	return NewWebSocketConn(conn, opts), nil
}

func (c *WebSocketConn) ID() string { return c.id }

func (c *WebSocketConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// Send writes data as one binary message.
func (c *WebSocketConn) Send(data []byte) error {
	if c.closed.Load() {
		return errors.New("connection is closed")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.opts.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

// Receive reads the next binary message.
func (c *WebSocketConn) Receive() ([]byte, error) {
	if c.closed.Load() {
		return nil, errors.New("connection is closed")
	}

	if c.opts.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	}
	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read message")
	}
	if messageType != websocket.BinaryMessage {
		return nil, errors.Errorf("unsupported message type %d", messageType)
	}
	return data, nil
}

// Close sends a close message and closes the underlying connection.
func (c *WebSocketConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return c.conn.Close()
}

// WebSocketListener accepts WebSocket connections on an HTTP path.
type WebSocketListener struct {
	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader
	opts     ConnOptions
	logger   log.Log

	accepted  chan *WebSocketConn
	done      chan struct{}
	closeOnce sync.Once
}

// ListenWebSocket serves path on address.
func ListenWebSocket(address, path string, opts ConnOptions, logger log.Log) (*WebSocketListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", address)
	}
	if logger == nil {
		logger = log.Provide()
	}

	l := &WebSocketListener{
		listener: listener,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		opts:     opts,
		logger:   logger.Named("websocket"),
		accepted: make(chan *WebSocketConn),
		done:     make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleUpgrade)
	l.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := l.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("WebSocket server stopped", log.Error(err))
		}
	}()
	return l, nil
}

func (l *WebSocketListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn("WebSocket upgrade failed", log.String("remote", r.RemoteAddr), log.Error(err))
		return
	}

	wsConn := NewWebSocketConn(conn, l.opts)
	select {
	case l.accepted <- wsConn:
	case <-l.done:
		_ = wsConn.Close()
	}
}

// Accept waits for the next upgraded connection.
func (l *WebSocketListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-l.accepted:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr returns the address the server listens on.
func (l *WebSocketListener) Addr() string { return l.listener.Addr().String() }

// Close stops the server. Accepted connections stay open.
func (l *WebSocketListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.server.Close()
	})
	return err
}
