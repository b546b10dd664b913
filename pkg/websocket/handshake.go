package websocket

import (
	"crypto/sha1" //nolint:gosec // Required by the WebSocket protocol's accept-key algorithm.
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// maxHandshakeRequestSize is the maximum size, in bytes, of the
// opening HTTP Upgrade request. The request is always small and
// fixed-shape, so exceeding this is a construction bug, not a runtime
// condition callers need to tune.
const maxHandshakeRequestSize = 512

// acceptGUID is fixed by https://datatracker.ietf.org/doc/html/rfc6455#section-1.3.
var acceptGUID = []byte("258EAFA5-E914-47DA-95CA-C5AB0DC85B11")

// generateNonce returns a base64-encoded 16-byte value read from r. It
// need not be cryptographically strong, only distinct per connection
// attempt; callers inject r (normally [crypto/rand.Reader]) so tests
// can supply a fixed byte sequence.
func generateNonce(r io.Reader) (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("failed to generate WebSocket handshake nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// expectedAcceptValue computes base64(SHA1(nonce ‖ acceptGUID)), the
// value the peer's Sec-WebSocket-Accept header must equal.
func expectedAcceptValue(nonce string) string {
	h := sha1.New() //nolint:gosec // Required by the WebSocket protocol.
	h.Write([]byte(nonce))
	h.Write(acceptGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// buildHandshakeRequest constructs the opening HTTP Upgrade request.
// Header order is fixed by the peer's parser, which reads headers
// positionally from a fixed-size buffer rather than as a proper HTTP
// client would.
func (s *Session) buildHandshakeRequest(nonce string) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", s.resource)
	b.WriteString("User-Agent: ThingWorx C SDK\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Host: %s\r\n", s.host)
	b.WriteString("Sec-WebSocket-Version: 13\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", nonce)
	fmt.Fprintf(&b, "Max-Frame-Size: %d\r\n", s.frameSize)
	fmt.Fprintf(&b, "appKey: %s\r\n", s.apiKey)
	b.WriteString("\r\n")

	if b.Len() > maxHandshakeRequestSize {
		return nil, fmt.Errorf("WebSocket handshake request of %d bytes exceeds %d-byte limit", b.Len(), maxHandshakeRequestSize)
	}
	return []byte(b.String()), nil
}

// logAPIKeyClaims is a best-effort diagnostic: if the configured API
// key happens to be a JWT, its claims are logged at Debug so operators
// can correlate a handshake against a token's issuer/expiry. It never
// affects handshake success: signature verification is deliberately
// skipped, since this key is opaque to the peer's own handshake logic
// and this engine has no verification key for it.
func (s *Session) logAPIKeyClaims() {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(s.apiKey, jwt.MapClaims{})
	if err != nil {
		s.logger.Debug().Msg("API key is not a JWT, skipping claims diagnostic")
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return
	}

	ev := s.logger.Debug()
	if iss, err := claims.GetIssuer(); err == nil && iss != "" {
		ev = ev.Str("api_key_issuer", iss)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		ev = ev.Str("api_key_expiry", exp.Time.String())
	}
	ev.Msg("parsed API key as JWT for diagnostics")
}

// connectState tracks which of the three required handshake response
// headers have been validated. Unlike the bitmask-with-sentinel this
// replaces, an invalid header value sets failed directly instead of
// relying on a magic -1 value.
type connectState struct {
	rcvdConnection bool
	rcvdUpgrade    bool
	validAccept    bool
	failed         bool

	// failCode distinguishes a bad accept-key from any other handshake
	// failure, so callers see INVALID_ACCEPT_KEY specifically for that
	// one condition, and the more general ERROR_INITIALIZING_WEBSOCKET
	// for everything else.
	failCode Code
}

func (c connectState) complete() bool {
	return !c.failed && c.rcvdConnection && c.rcvdUpgrade && c.validAccept
}

// applyHeader folds one parsed response header into the connect state.
func (c *connectState) applyHeader(name, value, nonce string) {
	switch name {
	case "upgrade":
		if !strings.EqualFold(value, "websocket") {
			c.failed = true
			c.failCode = ErrorInitializingWebSocket
			return
		}
		c.rcvdUpgrade = true
	case "connection":
		if !strings.EqualFold(value, "upgrade") {
			c.failed = true
			c.failCode = ErrorInitializingWebSocket
			return
		}
		c.rcvdConnection = true
	case "sec-websocket-accept":
		if value != expectedAcceptValue(nonce) {
			c.failed = true
			c.failCode = InvalidAcceptKey
			return
		}
		c.validAccept = true
	}
}

// parseHandshakeResponse parses an HTTP/1.1 response already known to
// contain a full header block (terminated by "\r\n\r\n") starting at
// buf[0]. It returns the resulting connect state.
//
// Parsing deliberately mirrors the peer's own response writer rather
// than a general-purpose HTTP parser: the status line's protocol
// version and reason phrase are not validated beyond the fixed-offset
// status code check, and header folding/continuation lines are not
// supported, because the peer never emits them.
func parseHandshakeResponse(buf []byte, nonce string) (connectState, error) {
	text := string(buf)
	headEnd := strings.Index(text, "\r\n\r\n")
	if headEnd < 0 {
		return connectState{}, fmt.Errorf("handshake response missing terminating blank line")
	}

	if len(text) < 12 {
		return connectState{failCode: ErrorInitializingWebSocket}, fmt.Errorf("handshake response status line too short")
	}
	if code := text[9:12]; code != "101" {
		return connectState{failCode: ErrorInitializingWebSocket}, fmt.Errorf("unexpected handshake response status code %q", code)
	}

	firstLineEnd := strings.Index(text, "\r\n")
	lines := strings.Split(text[firstLineEnd+2:headEnd], "\r\n")

	state := connectState{}
	for _, line := range lines {
		if line == "" {
			continue
		}
		sep := strings.IndexAny(line, ": \t")
		if sep < 0 {
			continue
		}
		name := strings.ToLower(line[:sep])
		value := strings.TrimLeft(line[sep+1:], " \t")
		state.applyHeader(name, value, nonce)
		if state.failed {
			return state, fmt.Errorf("invalid handshake response header %q: %q", name, value)
		}
	}

	return state, nil
}

// headerBlockComplete reports whether buf contains a full HTTP header
// block, i.e. the CRLFCRLF terminator.
func headerBlockComplete(buf []byte) bool {
	return strings.Contains(string(buf), "\r\n\r\n")
}
