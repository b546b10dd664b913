package websocket

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// transport is the narrow contract a [Session] needs over a byte
// stream. It intentionally knows nothing about WebSocket framing: it
// is a connect/reconnect/read/write/close seam so that the protocol
// logic above it can be tested without a real network, and so that
// the concrete transport (TLS over TCP) stays swappable.
//
// read and write both take a timeout. A read timeout is not an error:
// it is reported back as (0, nil). A write timeout is returned as an
// error like any other write failure.
type transport interface {
	connect() error
	reconnect() error
	read(buf []byte, timeout time.Duration) (int, error)
	write(buf []byte, timeout time.Duration) (int, error)
	close() error
}

// tlsTransport is the production [transport]: a TLS client connection
// over TCP. It is deliberately minimal; connection pooling, retries,
// and backoff policy belong to the caller, not to this engine (see
// the package's Non-goals around automatic reconnection).
type tlsTransport struct {
	host   string
	port   uint16
	config *tls.Config

	conn net.Conn
}

func newTLSTransport(host string, port uint16, config *tls.Config) *tlsTransport {
	if config == nil {
		config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return &tlsTransport{host: host, port: port, config: config}
}

func (t *tlsTransport) addr() string {
	return net.JoinHostPort(t.host, fmt.Sprintf("%d", t.port))
}

func (t *tlsTransport) connect() error {
	conn, err := tls.Dial("tcp", t.addr(), t.config)
	if err != nil {
		return fmt.Errorf("failed to dial TLS transport: %w", err)
	}
	t.conn = conn
	return nil
}

func (t *tlsTransport) reconnect() error {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	return t.connect()
}

func (t *tlsTransport) read(buf []byte, timeout time.Duration) (int, error) {
	if t.conn == nil {
		return 0, fmt.Errorf("read on unconnected transport")
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("failed to set read deadline: %w", err)
	}
	n, err := t.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil
		}
		return n, fmt.Errorf("transport read error: %w", err)
	}
	return n, nil
}

func (t *tlsTransport) write(buf []byte, timeout time.Duration) (int, error) {
	if t.conn == nil {
		return 0, fmt.Errorf("write on unconnected transport")
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("failed to set write deadline: %w", err)
	}
	n, err := t.conn.Write(buf)
	if err != nil {
		return n, fmt.Errorf("transport write error: %w", err)
	}
	return n, nil
}

func (t *tlsTransport) close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
