package channel

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"io"
	"math/big"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"
)

var _ Conn = (*QUICConn)(nil)

const (
	quicALPN = "ipcq"

	// DefaultIdleTimeout is the default connection idle timeout
	DefaultIdleTimeout = 30 * time.Second

	// DefaultKeepAlive is the default keep-alive interval
	DefaultKeepAlive = 15 * time.Second
)

// quicPreamble opens the stream. QUIC only announces a stream to the peer once
// data is written on it.
var quicPreamble = [4]byte{'I', 'P', 'C', 'Q'}

// QUICConn carries length-prefixed frames over a single bidirectional stream,
// which keeps them ordered.
type QUICConn struct {
	id     string
	conn   *quic.Conn
	stream *quic.Stream
	opts   ConnOptions
	closed atomic.Bool

	writeMu sync.Mutex
}

func newQUICConn(conn *quic.Conn, stream *quic.Stream, opts ConnOptions) *QUICConn {
	return &QUICConn{
		id:     uuid.New().String(),
		conn:   conn,
		stream: stream,
		opts:   opts,
	}
}

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  DefaultIdleTimeout,
		KeepAlivePeriod: DefaultKeepAlive,
	}
}

// DialQUIC connects to addr and opens the frame stream. A nil tlsConfig uses
// ClientTLSConfig.
func DialQUIC(ctx context.Context, addr string, tlsConfig *tls.Config, opts ConnOptions) (*QUICConn, error) {
	if tlsConfig == nil {
		tlsConfig = ClientTLSConfig()
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConfig, quicConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", addr)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "failed to open stream")
		return nil, errors.Wrap(err, "failed to open stream")
	}
	if _, err := stream.Write(quicPreamble[:]); err != nil {
		_ = conn.CloseWithError(0, "failed to open stream")
		return nil, errors.Wrap(err, "failed to write preamble")
	}
	return newQUICConn(conn, stream, opts), nil
}

func (c *QUICConn) ID() string { return c.id }

func (c *QUICConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// Send writes a 4-byte little-endian length followed by data.
func (c *QUICConn) Send(data []byte) error {
	if c.closed.Load() {
		return errors.New("connection is closed")
	}
	if c.opts.MaxFrameSize > 0 && len(data) > c.opts.MaxFrameSize {
		return errors.Errorf("frame size %d exceeds limit %d", len(data), c.opts.MaxFrameSize)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.opts.WriteTimeout > 0 {
		_ = c.stream.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := c.stream.Write(header[:]); err != nil {
		return errors.Wrap(err, "failed to write frame length")
	}
	if _, err := c.stream.Write(data); err != nil {
		return errors.Wrap(err, "failed to write frame data")
	}
	return nil
}

// Receive reads one length-prefixed frame.
func (c *QUICConn) Receive() ([]byte, error) {
	if c.closed.Load() {
		return nil, errors.New("connection is closed")
	}
	if c.opts.ReadTimeout > 0 {
		_ = c.stream.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	}

	var header [4]byte
	if _, err := io.ReadFull(c.stream, header[:]); err != nil {
		return nil, errors.Wrap(err, "failed to read frame length")
	}
	length := int(binary.LittleEndian.Uint32(header[:]))
	if c.opts.MaxFrameSize > 0 && length > c.opts.MaxFrameSize {
		return nil, errors.Errorf("frame size %d exceeds limit %d", length, c.opts.MaxFrameSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(c.stream, data); err != nil {
		return nil, errors.Wrap(err, "failed to read frame data")
	}
	return data, nil
}

// Close closes the stream and the connection with a normal status.
func (c *QUICConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = c.stream.Close()
	return c.conn.CloseWithError(0, "connection closed")
}

// QUICListener accepts QUIC connections carrying a frame stream.
type QUICListener struct {
	listener *quic.Listener
	opts     ConnOptions
}

// ListenQUIC listens on addr. A nil tlsConfig generates a self-signed
// certificate.
func ListenQUIC(addr string, tlsConfig *tls.Config, opts ConnOptions) (*QUICListener, error) {
	if tlsConfig == nil {
		var err error
		if tlsConfig, err = GenerateSelfSignedTLS(); err != nil {
			return nil, errors.Wrap(err, "failed to generate TLS config")
		}
	}
	listener, err := quic.ListenAddr(addr, tlsConfig, quicConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return &QUICListener{listener: listener, opts: opts}, nil
}

// Accept waits for a connection and its frame stream.
func (l *QUICListener) Accept(ctx context.Context) (Conn, error) {
	conn, err := l.listener.Accept(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to accept connection")
	}

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "no stream")
		return nil, errors.Wrap(err, "failed to accept stream")
	}

	var preamble [4]byte
	if _, err := io.ReadFull(stream, preamble[:]); err != nil || preamble != quicPreamble {
		_ = conn.CloseWithError(1, "bad preamble")
		return nil, errors.New("peer did not send the ipcq preamble")
	}
	return newQUICConn(conn, stream, l.opts), nil
}

// Addr returns the local UDP address.
func (l *QUICListener) Addr() string { return l.listener.Addr().String() }

func (l *QUICListener) Close() error { return l.listener.Close() }

// GenerateSelfSignedTLS generates a self-signed TLS certificate for development
func GenerateSelfSignedTLS() (*tls.Config, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"ipcq"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:              []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{certDER},
			PrivateKey:  privateKey,
		}},
		NextProtos: []string{quicALPN},
		MinVersion: tls.VersionTLS13,
	}, nil
}

// ClientTLSConfig accepts any server certificate. Development only.
func ClientTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{quicALPN},
		MinVersion:         tls.VersionTLS13,
	}
}
