package websocket

import (
	"crypto/rand"
	"crypto/tls"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"
)

// frameBufferOverhead matches the original C struct's "frameSize + 10 + 1"
// sizing: up to 8 header/mask-placeholder bytes for an extended-length
// data frame, plus a 3-byte margin. Payloads themselves never exceed
// frameSize, so this is headroom for in-flight encode scratch space,
// not for payload bytes.
const frameBufferOverhead = 10 + 1

// minConnectBufferSize is the smallest buffer the handshake response
// reader will settle for, regardless of how small frameSize is
// configured. The opening HTTP response is always well under 1 KiB,
// but a deployment could legitimately configure a small frameSize for
// steady-state frames, and that must not starve the one-time
// handshake read.
const minConnectBufferSize = 1024

// handshakeWriteTimeout bounds the write of the (always small,
// ≤512-byte) opening HTTP Upgrade request. Kept independent of the
// overall connect deadline.
const handshakeWriteTimeout = 100 * time.Millisecond

// sendTimeout bounds a single outbound data or control frame write,
// once a session is already connected. The engine has no outbound
// buffering (a Non-goal), so a write that can't complete within this
// window indicates a broken transport, not backpressure to absorb.
const sendTimeout = 5 * time.Second

// connState is the three-valued connection state, represented as a
// tagged variant instead of a {false, true, -1} tri-state.
type connState int

const (
	connDisconnected connState = iota
	connConnected
	connFailed
)

// transportFactory builds a fresh [transport] for a [Session] to
// (re)connect through. A Session calls it once, the first time
// restartSocket runs without a transport; every later Connect and
// every fatal-error recovery reconnects that same transport.
type transportFactory func() transport

// Session is one client-side WebSocket connection: its configuration,
// its buffers, its callback registry, and a handle to its transport.
// A Session is created with [New] and is safe for concurrent use by
// one or more senders and one receiver, per the mutex discipline
// documented below.
type Session struct {
	id string

	host     string
	port     uint16
	resource string

	apiKey      string
	gatewayName string
	gatewayType string

	frameSize        int
	messageChunkSize int

	tlsConfig        *tls.Config
	transportFactory transportFactory
	transport        transport

	nonceSource io.Reader
	nonce       string

	frameBuf []byte // reused for handshake response bytes and frame payloads.
	sendBuf  []byte // scratch space for outbound frame encoding.

	rs recvState

	stateMu sync.RWMutex
	state   connState

	// sendMu is acquired for the whole duration of a logical send
	// operation (a handshake, or one SendMessage call spanning
	// possibly multiple frames). sendFrameMu is acquired only around
	// the encoding+write of a single frame. sendMu is always acquired
	// before sendFrameMu; SendPing/SendPong/Disconnect acquire only
	// sendFrameMu directly, since a lone control frame is not a
	// multi-frame "message" in need of the outer lock. recvMu is
	// independent of both.
	sendMu      sync.Mutex
	sendFrameMu sync.Mutex
	recvMu      sync.Mutex

	handlers handlers

	logger zerolog.Logger
}

// Option configures a [Session] at construction time.
type Option func(*Session)

// WithTLSConfig overrides the default minimum-TLS-1.2 configuration
// used by the production transport.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *Session) { s.tlsConfig = cfg }
}

// WithGateway attaches optional gateway identity metadata, logged on
// connect/disconnect but never sent over the wire.
func WithGateway(name, kind string) Option {
	return func(s *Session) {
		s.gatewayName = name
		s.gatewayType = kind
	}
}

// WithLogger attaches a logger; the default is [zerolog.Nop].
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithNonceSource overrides the handshake nonce's randomness source
// (default [crypto/rand.Reader]). Exposed for deterministic tests.
func WithNonceSource(r io.Reader) Option {
	return func(s *Session) { s.nonceSource = r }
}

// withTransportFactory overrides how a [Session] builds its transport.
// Unexported: only tests need to swap in a net.Pipe-backed fake.
func withTransportFactory(f transportFactory) Option {
	return func(s *Session) { s.transportFactory = f }
}

// New constructs a Session. host, resource, and apiKey must be
// non-empty; frameSize (the largest payload carried by a single wire
// frame) must be positive and no larger than 65535; messageChunkSize
// (the largest payload a single call to SendMessage may carry, which
// SendMessage fragments into frameSize-sized frames as needed) must
// also be positive and no larger than 65535. Any violation returns
// InvalidParam and a nil Session.
func New(host string, port uint16, resource, apiKey string, frameSize, messageChunkSize int, opts ...Option) (*Session, Code) {
	if host == "" || resource == "" || apiKey == "" {
		return nil, InvalidParam
	}
	if frameSize <= 0 || frameSize > 65535 {
		return nil, InvalidParam
	}
	if messageChunkSize <= 0 || messageChunkSize > 65535 {
		return nil, InvalidParam
	}

	s := &Session{
		id:               shortuuid.New(),
		host:             host,
		port:             port,
		resource:         resource,
		apiKey:           apiKey,
		frameSize:        frameSize,
		messageChunkSize: messageChunkSize,
		nonceSource:      rand.Reader,
		frameBuf:         make([]byte, maxInt(frameSize+frameBufferOverhead, minConnectBufferSize)),
		sendBuf:          make([]byte, frameSize+frameBufferOverhead),
		logger:           zerolog.Nop(),
	}
	s.rs = newRecvState(s.frameBuf[:frameSize])

	for _, opt := range opts {
		opt(s)
	}

	if s.transportFactory == nil {
		s.transportFactory = func() transport {
			return newTLSTransport(s.host, s.port, s.tlsConfig)
		}
	}

	s.logger = s.logger.With().
		Str("session_id", s.id).
		Str("host", s.host).
		Str("port", strconv.Itoa(int(s.port))).
		Logger()

	if s.gatewayName != "" || s.gatewayType != "" {
		s.logger = s.logger.With().
			Str("gateway_name", s.gatewayName).
			Str("gateway_type", s.gatewayType).
			Logger()
	}

	return s, OK
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Delete tears down a Session's transport and releases its buffers.
// The Session must not be used afterwards.
func (s *Session) Delete() {
	if s.transport != nil {
		_ = s.transport.close()
	}
	s.frameBuf = nil
	s.sendBuf = nil
	s.handlers = handlers{}
}

// ID returns the Session's short, generated identifier.
func (s *Session) ID() string {
	return s.id
}

// IsConnected reports whether the Session currently believes it has an
// open, handshaked connection.
func (s *Session) IsConnected() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state == connConnected
}

func (s *Session) setConnected(state connState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

// restartSocket resets the receive state machine and connection flag,
// then asks the transport to reconnect to the same host/port. It is
// invoked at the top of Connect and after any fatal receive error.
func (s *Session) restartSocket() error {
	s.setConnected(connDisconnected)
	s.rs.resetAll()

	if s.transport == nil {
		s.transport = s.transportFactory()
	}
	return s.transport.reconnect()
}

// Connect creates the Session's transport if it has none yet,
// reconnects it, and performs the opening HTTP Upgrade handshake
// within timeoutMs. It
// holds sendMu for its entire duration.
func (s *Session) Connect(timeoutMs int) Code {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.logger.Debug().Msg("connecting WebSocket session")

	if err := s.restartSocket(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to open WebSocket transport")
		return SocketInitError
	}

	return s.handshake(time.Duration(timeoutMs) * time.Millisecond)
}

// handshake performs the opening HTTP Upgrade request/response exchange.
func (s *Session) handshake(timeout time.Duration) Code {
	s.logAPIKeyClaims()

	nonce, err := generateNonce(s.nonceSource)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to generate WebSocket handshake nonce")
		return ErrorInitializingWebSocket
	}
	s.nonce = nonce

	req, err := s.buildHandshakeRequest(nonce)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to build WebSocket handshake request")
		return ErrorInitializingWebSocket
	}

	if _, err := s.transport.write(req, handshakeWriteTimeout); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write WebSocket handshake request")
		return ErrorWritingToSocket
	}

	n, code := s.readHandshakeResponse(timeout)
	if code != OK {
		return code
	}

	state, err := parseHandshakeResponse(s.frameBuf[:n], nonce)
	if err != nil || !state.complete() {
		if err != nil {
			s.logger.Warn().Err(err).Msg("WebSocket handshake response rejected")
		} else {
			s.logger.Warn().Msg("WebSocket handshake response missing required headers")
		}
		if state.failCode != OK {
			return state.failCode
		}
		return ErrorInitializingWebSocket
	}

	s.setConnected(connConnected)
	s.logger.Info().Msg("WebSocket session connected")
	s.handlers.fireConnected(s)
	return OK
}

// readHandshakeResponse reads into the frame buffer until a full HTTP
// header block has arrived, the connect deadline expires, or a read
// error occurs.
func (s *Session) readHandshakeResponse(timeout time.Duration) (int, Code) {
	deadline := time.Now().Add(timeout)
	n := 0

	for {
		if !time.Now().Before(deadline) {
			return 0, TimeoutInitializingWebSocket
		}
		if n >= len(s.frameBuf) {
			s.logger.Warn().Msg("WebSocket handshake response exceeded frame buffer")
			return 0, ErrorInitializingWebSocket
		}

		read, err := s.transport.read(s.frameBuf[n:], time.Until(deadline))
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to read WebSocket handshake response")
			return 0, ErrorInitializingWebSocket
		}
		n += read

		if headerBlockComplete(s.frameBuf[:n]) {
			return n, OK
		}
	}
}

// Disconnect emits a close frame (unless code is [CloseServerClosed],
// meaning the peer already closed the connection) and tears down the
// transport. The close callback fires only when a frame was actually
// emitted.
func (s *Session) Disconnect(code CloseCode, reason string) Code {
	result := OK
	emitted := false

	if code != CloseServerClosed {
		payload := buildClosePayload(code, reason)
		if err := s.writeControlFrame(opcodeClose, payload); err != nil {
			s.logger.Warn().Err(err).Msg("failed to send WebSocket close frame")
			result = ErrorWritingToWebSocket
		} else {
			emitted = true
		}
	}

	s.setConnected(connDisconnected)
	if s.transport != nil {
		_ = s.transport.close()
	}

	if emitted {
		s.handlers.fireClose(s, reason)
	}

	return result
}

// writeFrame encodes and writes a single data (or continuation) frame.
// Only reachable from SendMessage, which already holds sendMu: this is
// what makes the sendMu-before-sendFrameMu ordering a property of the
// call graph rather than just a documented convention.
func (s *Session) writeFrame(op Opcode, fin bool, payload []byte) error {
	s.sendFrameMu.Lock()
	defer s.sendFrameMu.Unlock()

	n := writeDataFrame(s.sendBuf, op, fin, payload)
	_, err := s.transport.write(s.sendBuf[:n], sendTimeout)
	return err
}

// writeControlFrame encodes and writes a single control frame.
func (s *Session) writeControlFrame(op Opcode, payload []byte) error {
	s.sendFrameMu.Lock()
	defer s.sendFrameMu.Unlock()

	n, err := writeControlFrame(s.sendBuf, op, payload)
	if err != nil {
		return err
	}
	_, err = s.transport.write(s.sendBuf[:n], sendTimeout)
	return err
}

// SendMessage sends buf as a text or binary message, fragmenting it
// into frameSize-sized frames if it doesn't fit in one. length must
// not exceed messageChunkSize.
func (s *Session) SendMessage(buf []byte, length int, isText bool) Code {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if !s.IsConnected() {
		return WebSocketNotConnected
	}
	if length > s.messageChunkSize || length < 0 || length > len(buf) {
		return WebSocketMsgTooLarge
	}

	opcode := OpcodeBinary
	if isText {
		opcode = OpcodeText
	}

	data := buf[:length]
	if length <= s.frameSize {
		if err := s.writeFrame(opcode, true, data); err != nil {
			return s.failSend(err)
		}
		return OK
	}

	for offset := 0; offset < length; offset += s.frameSize {
		end := offset + s.frameSize
		if end > length {
			end = length
		}

		op := opcode
		if offset > 0 {
			op = opcodeContinuation
		}
		fin := end == length

		if err := s.writeFrame(op, fin, data[offset:end]); err != nil {
			return s.failSend(err)
		}
	}

	return OK
}

// SendPing sends a ping control frame. If msg is nil, the current time
// formatted as HH:MM:SS is used instead.
func (s *Session) SendPing(msg []byte) Code {
	if !s.IsConnected() {
		return WebSocketNotConnected
	}
	if msg == nil {
		msg = []byte(time.Now().Format("15:04:05"))
	}
	if err := s.writeControlFrame(opcodePing, msg); err != nil {
		return s.failSend(err)
	}
	return OK
}

// SendPong sends a pong control frame with the given payload.
func (s *Session) SendPong(msg []byte) Code {
	if !s.IsConnected() {
		return WebSocketNotConnected
	}
	if err := s.writeControlFrame(opcodePong, msg); err != nil {
		return s.failSend(err)
	}
	return OK
}

// failSend implements the send-path error policy:
// mark the session disconnected and restart the transport, but -
// unlike a receive failure - do not fire the close callback; the
// caller already sees the error via the returned Code.
func (s *Session) failSend(cause error) Code {
	s.logger.Error().Err(cause).Msg("failed to write to WebSocket transport")

	s.setConnected(connFailed)
	if err := s.restartSocket(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to restart WebSocket transport after send error")
	}

	return ErrorWritingToWebSocket
}
