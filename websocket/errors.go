package websocket

import "errors"

// Frame decode/encode error kinds (RFC 6455 Section 5.2, spec kinds
// "invalid_opcode", "use_of_reserved", "payload_too_large").
var (
	// ErrInvalidOpcode indicates an unknown or reserved opcode (0x3-0x7,
	// 0xB-0xF). Maps to close code 1002.
	ErrInvalidOpcode = errors.New("websocket: invalid opcode")

	// ErrReservedBits indicates RSV1/RSV2/RSV3 are set without an
	// extension having negotiated them. Maps to close code 1002.
	ErrReservedBits = errors.New("websocket: reserved bits must be 0")

	// ErrControlFragmented indicates a control frame with FIN=0.
	// RFC 6455 Section 5.5: control frames must not be fragmented.
	ErrControlFragmented = errors.New("websocket: control frame must not be fragmented")

	// ErrControlTooLarge indicates a control frame payload over 125
	// bytes. RFC 6455 Section 5.5.
	ErrControlTooLarge = errors.New("websocket: control frame payload too large")

	// ErrFrameTooLarge indicates a data frame payload over the
	// configured ceiling (ListenerOptions.MaxFramePayload). Maps to
	// close code 1009.
	ErrFrameTooLarge = errors.New("websocket: frame too large")

	// ErrPayloadTooLarge indicates an encode was asked to emit a
	// payload longer than the wire format can represent.
	ErrPayloadTooLarge = errors.New("websocket: payload too large to encode")

	// ErrUnexpectedContinuation indicates a continuation frame with no
	// fragment in progress.
	ErrUnexpectedContinuation = errors.New("websocket: unexpected continuation frame")

	// ErrInterleavedDataFrame indicates a non-control data frame arrived
	// while a fragmented message was already in progress.
	ErrInterleavedDataFrame = errors.New("websocket: data frame interleaved with fragmented message")

	// ErrInvalidUTF8 indicates a text message contains invalid UTF-8.
	// RFC 6455 Section 8.1. Maps to close code 1007.
	ErrInvalidUTF8 = errors.New("websocket: invalid UTF-8 in text message")

	// ErrMaskRequired indicates a client-origin frame arrived unmasked.
	// RFC 6455 Section 5.1: the connection enforces this, not the
	// direction-agnostic codec. Maps to close code 1002.
	ErrMaskRequired = errors.New("websocket: client frames must be masked")

	// ErrProtocolError is the catch-all wire-protocol violation, used
	// where no more specific sentinel applies. Maps to close code 1002.
	ErrProtocolError = errors.New("websocket: protocol error")

	// Handshake parse error kinds (spec kinds "invalid_method",
	// "invalid_path", "invalid_http_version", "invalid_header_syntax").
	// RFC 6455 Section 4.1.

	// ErrInvalidMethod indicates the request line's method is not GET.
	ErrInvalidMethod = errors.New("websocket: method must be GET")

	// ErrInvalidPath indicates the request-target does not begin with
	// "/". Maps to a 404 response, not 400.
	ErrInvalidPath = errors.New("websocket: request-target must begin with /")

	// ErrInvalidHTTPVersion indicates the request line's version is not
	// exactly "HTTP/1.1".
	ErrInvalidHTTPVersion = errors.New("websocket: version must be HTTP/1.1")

	// ErrHeaderSyntax indicates a header line has no colon separator.
	ErrHeaderSyntax = errors.New("websocket: malformed header line")

	// Handshake validation error kinds (spec kinds
	// "invalid_header_upgrade", "invalid_header_connection",
	// "invalid_header_sec_ws_key", "invalid_header_sec_ws_version",
	// "invalid_header_not_enough"). RFC 6455 Section 4.2.1.

	// ErrMissingUpgrade indicates the Upgrade header does not contain
	// "websocket" (case-insensitive) among its values.
	ErrMissingUpgrade = errors.New("websocket: missing or invalid Upgrade header")

	// ErrMissingConnection indicates the Connection header does not
	// contain "Upgrade" (case-insensitive) among its values.
	ErrMissingConnection = errors.New("websocket: missing or invalid Connection header")

	// ErrMissingSecKey indicates Sec-WebSocket-Key is absent or empty.
	ErrMissingSecKey = errors.New("websocket: missing Sec-WebSocket-Key header")

	// ErrInvalidVersion indicates Sec-WebSocket-Version is not exactly
	// "13".
	ErrInvalidVersion = errors.New("websocket: unsupported WebSocket version")

	// ErrHeaderNotEnough indicates some other required header is
	// missing, after the four specific checks above have passed.
	ErrHeaderNotEnough = errors.New("websocket: missing required header")

	// ErrOriginDenied indicates the configured CheckOrigin hook
	// rejected the request. Application-level, not an RFC requirement.
	ErrOriginDenied = errors.New("websocket: origin check failed")

	// Connection lifecycle errors.

	// ErrClosed indicates an operation was attempted on a connection
	// that has already transitioned to Closed.
	ErrClosed = errors.New("websocket: connection closed")

	// ErrInvalidMessageType indicates an operation was invoked for a
	// message type it does not support (e.g. reading text as binary).
	ErrInvalidMessageType = errors.New("websocket: invalid message type")

	// ErrTransportClosed indicates the underlying transport was closed
	// by the peer or the local side without a WebSocket close frame.
	ErrTransportClosed = errors.New("websocket: transport closed")
)
