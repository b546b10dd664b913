package websocket

import "strconv"

// Code is a stable, small integer-backed error enumeration returned by
// [New] and by the [Session] operations that can fail. It is
// deliberately coarse: the underlying cause is logged, not returned.
type Code int

const (
	OK Code = iota
	InvalidParam
	ErrorAllocatingMemory
	ErrorCreatingMutex
	SocketInitError
	ErrorWritingToSocket
	ErrorInitializingWebSocket
	TimeoutInitializingWebSocket
	ErrorReadingFromWebSocket
	ErrorWritingToWebSocket
	WebSocketNotConnected
	WebSocketFrameTooLarge
	WebSocketMsgTooLarge
	InvalidWebSocketFrameType
	InvalidAcceptKey
	UnknownError
)

// String returns the code's stable name, as used in logs, or its
// number if it's unrecognized.
func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case InvalidParam:
		return "INVALID_PARAM"
	case ErrorAllocatingMemory:
		return "ERROR_ALLOCATING_MEMORY"
	case ErrorCreatingMutex:
		return "ERROR_CREATING_MTX"
	case SocketInitError:
		return "SOCKET_INIT_ERROR"
	case ErrorWritingToSocket:
		return "ERROR_WRITING_TO_SOCKET"
	case ErrorInitializingWebSocket:
		return "ERROR_INITIALIZING_WEBSOCKET"
	case TimeoutInitializingWebSocket:
		return "TIMEOUT_INITIALIZING_WEBSOCKET"
	case ErrorReadingFromWebSocket:
		return "ERROR_READING_FROM_WEBSOCKET"
	case ErrorWritingToWebSocket:
		return "ERROR_WRITING_TO_WEBSOCKET"
	case WebSocketNotConnected:
		return "WEBSOCKET_NOT_CONNECTED"
	case WebSocketFrameTooLarge:
		return "WEBSOCKET_FRAME_TOO_LARGE"
	case WebSocketMsgTooLarge:
		return "WEBSOCKET_MSG_TOO_LARGE"
	case InvalidWebSocketFrameType:
		return "INVALID_WEBSOCKET_FRAME_TYPE"
	case InvalidAcceptKey:
		return "INVALID_ACCEPT_KEY"
	case UnknownError:
		return "UNKNOWN_ERROR"
	default:
		return strconv.Itoa(int(c))
	}
}
