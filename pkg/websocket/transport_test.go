package websocket

import (
	"net"
	"strings"
	"testing"
	"time"
)

// pipeTransport is a [transport] backed by [net.Pipe], letting tests
// drive both ends of the byte stream deterministically without a real
// network. connect/reconnect are no-ops: the pipe is already wired up
// by newPipeTransportPair before the Session ever sees it.
type pipeTransport struct {
	conn net.Conn
}

func newPipeTransportPair() (client *pipeTransport, server net.Conn) {
	c, s := net.Pipe()
	return &pipeTransport{conn: c}, s
}

func (p *pipeTransport) connect() error   { return nil }
func (p *pipeTransport) reconnect() error { return nil }

func (p *pipeTransport) read(buf []byte, timeout time.Duration) (int, error) {
	if err := p.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	n, err := p.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil
		}
		return n, err
	}
	return n, nil
}

func (p *pipeTransport) write(buf []byte, timeout time.Duration) (int, error) {
	if err := p.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	return p.conn.Write(buf)
}

func (p *pipeTransport) close() error {
	return p.conn.Close()
}

// newTestSession builds a Session wired to a pipeTransport and returns
// the server-side net.Conn a test uses to play the peer, plus the
// fixed nonce the handshake will generate.
func newTestSession(t *testing.T, frameSize, chunkSize int) (*Session, net.Conn, string) {
	t.Helper()

	client, server := newPipeTransportPair()
	const fixedNonce = "dGhlIHNhbXBsZSBub25jZQ=="

	s, code := New("example.invalid", 443, "/ws", "test-api-key", frameSize, chunkSize,
		withTransportFactory(func() transport { return client }),
		WithNonceSource(strings.NewReader(decodeFixedNonceSeed())),
	)
	if code != OK {
		t.Fatalf("New() = %v, want OK", code)
	}
	return s, server, fixedNonce
}

// decodeFixedNonceSeed returns the 16 raw bytes that base64-encode to
// "dGhlIHNhbXBsZSBub25jZQ==" (the fixed test vector from the protocol's
// own handshake example), so a test's nonce source reproduces it.
func decodeFixedNonceSeed() string {
	return "the sample nonce"
}
