package websocket

import (
	"errors"
	"time"
)

// recvState is the resumable state of the receive state machine. It
// replaces the original C implementation's integer read_state/bytesNeeded
// bookkeeping with a small Go struct: a frame is either still being
// headered (headerLen < headerWant) or having its payload accumulated
// (payloadLen < len(payload)), and msgType is the only thing that
// needs to survive an interleaved control frame (see fragmentation
// notes below).
type recvState struct {
	header     [4]byte
	headerLen  int
	headerWant int

	headerDone bool
	hdr        frameHeader

	buf        []byte // the session's frame buffer, reused across frames
	payload    []byte // buf[:hdr.payloadLength] once the header is decoded
	payloadLen int

	// msgType is the opcode of a fragmented data message currently in
	// progress (opcodeContinuation if none). Because every complete
	// frame -- final or not -- is dispatched and its payload cursor
	// reset immediately (see the fragmentation note on Session.Receive),
	// msgType is the only state a control frame's own header/payload
	// cycle needs to leave untouched for a partially-sent text/binary
	// message to "survive" the interleaving, per the original's
	// savedState behavior.
	msgType Opcode
}

func newRecvState(buf []byte) recvState {
	return recvState{buf: buf, headerWant: 2}
}

// reset returns the state machine to its READ_HEADER starting point.
// It does not touch msgType: a fragmented message survives a reset
// that merely finished delivering one of its frames.
func (r *recvState) reset() {
	r.headerLen = 0
	r.headerWant = 2
	r.headerDone = false
	r.hdr = frameHeader{}
	r.payload = nil
	r.payloadLen = 0
}

// resetAll additionally clears msgType, e.g. after a connection restart.
func (r *recvState) resetAll() {
	r.reset()
	r.msgType = opcodeContinuation
}

// nextSlice returns the portion of the header scratch space or the
// frame buffer that the next transport read should fill in. It is
// empty only if a payload is complete but not yet dispatched, which
// advance never leaves behind: a completed frame, including a
// zero-length one, is dispatched and reset before advance returns.
func (r *recvState) nextSlice() []byte {
	if !r.headerDone {
		return r.header[r.headerLen:r.headerWant]
	}
	return r.payload[r.payloadLen:]
}

// errOversizedFrame and errMalformedFrame are internal sentinels distinguishing
// a fatal protocol condition (tear the session down) from a plain I/O error;
// both currently map to the same ERROR_READING_FROM_WEBSOCKET code, but are kept
// distinct so a future caller-visible distinction doesn't need a rewrite here.
var (
	errOversizedFrame = errors.New("frame payload exceeds configured frame size")
	errMalformedFrame = errors.New("malformed WebSocket frame")
)

// advance folds n freshly-read bytes into the state machine, decoding
// the header once enough bytes have arrived and, once a frame's
// payload is fully buffered, dispatching it. It returns a non-nil
// error only for conditions that must tear the session down.
func (r *recvState) advance(n int, frameSize int, dispatch func(opcode Opcode, fin bool, payload []byte)) error {
	if !r.headerDone {
		r.headerLen += n
		if r.headerLen < r.headerWant {
			return nil
		}

		if r.headerWant == 2 {
			want := headerSize(r.header[1])
			if want > r.headerWant {
				r.headerWant = want
				return nil
			}
		}

		h, err := readFrameHeader(r.header[:r.headerWant])
		if err != nil {
			return errMalformedFrame
		}
		if err := checkFrameHeader(h, r.msgType); err != nil {
			return errMalformedFrame
		}
		if int(h.payloadLength) > frameSize {
			return errOversizedFrame
		}

		r.hdr = h
		r.headerDone = true
		r.payload = r.buf[:h.payloadLength]
		r.payloadLen = 0

		if h.payloadLength == 0 {
			r.finish(dispatch)
		}
		return nil
	}

	r.payloadLen += n
	if r.payloadLen >= len(r.payload) {
		r.finish(dispatch)
	}
	return nil
}

// finish dispatches the just-completed frame and resets the cursors
// for the next one, updating msgType per the fragmentation rules.
func (r *recvState) finish(dispatch func(opcode Opcode, fin bool, payload []byte)) {
	h := r.hdr
	payload := r.payload[:r.payloadLen]

	deliverAs := h.opcode
	if h.opcode == opcodeContinuation {
		deliverAs = r.msgType
	}

	dispatch(deliverAs, h.fin, payload)

	if deliverAs == OpcodeText || deliverAs == OpcodeBinary {
		if h.fin {
			r.msgType = opcodeContinuation
		} else {
			r.msgType = deliverAs
		}
	}

	r.reset()
}

// Receive drives the resumable receive state machine by performing at
// most one transport read, then advancing state and firing at most
// the callbacks implied by whatever frame(s) that read completed.
//
// Fragmentation note (bug-compatible, see doc.go): a non-final data
// frame is delivered to its callback as soon as its own payload is
// fully buffered, exactly like a final one -- it is NOT held back and
// coalesced with the rest of the message. Do not "fix" this: callers
// of this engine may depend on the per-fragment delivery.
func (s *Session) Receive(timeoutMs int) Code {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	if !s.IsConnected() {
		return WebSocketNotConnected
	}

	need := s.rs.nextSlice()
	if len(need) == 0 {
		// Guard only: advance dispatches and resets every completed
		// frame (an empty ping included), so nothing is left to read.
		return OK
	}

	n, err := s.transport.read(need, time.Duration(timeoutMs)*time.Millisecond)
	if err != nil {
		return s.failReceive(err)
	}
	if n == 0 {
		return OK // Timeout: no data yet, state unchanged, caller polls again.
	}

	dispatchErr := s.rs.advance(n, s.frameSize, s.dispatchFrame)
	if dispatchErr != nil {
		return s.failReceive(dispatchErr)
	}
	return OK
}

// dispatchFrame fires the registered callback for one completed frame.
func (s *Session) dispatchFrame(opcode Opcode, _ bool, payload []byte) {
	switch opcode {
	case OpcodeText:
		s.handlers.fireData(s, EventText, payload)
	case OpcodeBinary:
		s.handlers.fireData(s, EventBinary, payload)
	case opcodePing:
		s.handlers.fireData(s, EventPing, payload)
	case opcodePong:
		s.handlers.fireData(s, EventPong, payload)
	case opcodeClose:
		reason := string(payload)
		s.setConnected(connDisconnected)
		s.handlers.fireClose(s, reason)
		s.logger.Debug().Str("reason", reason).Msg("WebSocket server sent close frame")
	}
}

// failReceive implements the fatal-receive-error policy: mark the
// session disconnected, tell the application "Socket Error" regardless
// of the underlying cause (matching the original's single fixed string),
// restart the transport, and surface a stable error code.
func (s *Session) failReceive(cause error) Code {
	s.logger.Error().Err(cause).Msg("fatal error reading from WebSocket")

	s.setConnected(connFailed)
	s.handlers.fireClose(s, "Socket Error")

	if err := s.restartSocket(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to restart WebSocket transport after receive error")
	}

	return ErrorReadingFromWebSocket
}
