package websocket

import "strconv"

// CloseCode is the vendor-extended close reason carried in the payload
// of an outbound close control frame. It is deliberately distinct from
// the standard RFC 6455 close-status-code space: the peer this engine
// talks to defines its own byte-valued enumeration instead of the
// two-byte IANA-registered codes.
type CloseCode int

const (
	CloseNormal CloseCode = iota
	CloseGoingToSleep
	CloseProtocolError
	CloseUnsupportedDataType
	CloseInvalidData
	ClosePolicyViolation
	CloseFrameTooLarge
	CloseNoExtensionFound
	CloseUnexpectedCondition

	// CloseServerClosed is not a wire value: it tells [Session.Disconnect]
	// that the peer already closed the connection, so no close frame
	// should be emitted at all.
	CloseServerClosed
)

// String returns the close code's name, or its number if unrecognized.
func (c CloseCode) String() string {
	switch c {
	case CloseNormal:
		return "NORMAL_CLOSE"
	case CloseGoingToSleep:
		return "GOING_TO_SLEEP"
	case CloseProtocolError:
		return "PROTOCOL_ERROR"
	case CloseUnsupportedDataType:
		return "UNSUPPORTED_DATA_TYPE"
	case CloseInvalidData:
		return "INVALID_DATA"
	case ClosePolicyViolation:
		return "POLICY_VIOLATION"
	case CloseFrameTooLarge:
		return "FRAME_TOO_LARGE"
	case CloseNoExtensionFound:
		return "NO_EXTENSION_FOUND"
	case CloseUnexpectedCondition:
		return "UNEXPECTED_CONDITION"
	case CloseServerClosed:
		return "SERVER_CLOSED"
	default:
		return strconv.Itoa(int(c))
	}
}

// wireByte returns the single byte that identifies this close code on
// the wire. Any code this engine doesn't recognize (including the
// local-only CloseServerClosed sentinel, which should never reach
// here) falls back to UNEXPECTED_CONDITION's byte, matching the
// original's own default case.
func (c CloseCode) wireByte() byte {
	switch c {
	case CloseNormal:
		return 0xE8
	case CloseGoingToSleep:
		return 0xE9
	case CloseProtocolError:
		return 0xEA
	case CloseUnsupportedDataType:
		return 0xEB
	case CloseInvalidData:
		return 0xEF
	case ClosePolicyViolation:
		return 0xF0
	case CloseFrameTooLarge:
		return 0xF1
	case CloseNoExtensionFound:
		return 0xF2
	default:
		return 0xF3
	}
}

// closePayloadMarker is always the first byte of an outbound close
// frame's payload.
const closePayloadMarker = 0x03

// buildClosePayload constructs the 2-byte vendor close-code pair
// followed by a space-prefixed reason, as emitted by [Session.Disconnect].
func buildClosePayload(code CloseCode, reason string) []byte {
	payload := make([]byte, 0, 2+1+len(reason))
	payload = append(payload, closePayloadMarker, code.wireByte())
	if reason != "" {
		payload = append(payload, ' ')
		payload = append(payload, reason...)
	}
	return payload
}
