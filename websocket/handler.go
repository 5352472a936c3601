package websocket

// Handler is the capability set the connection actor requires from the
// application (spec.md Section 4.5, C5). Init and the two data-frame
// callbacks are mandatory; Terminate and HandleError have no-op
// defaults available by embedding BaseHandler.
type Handler interface {
	// Init is invoked once, after the 101 response has been sent and
	// the connection transitions to Open. Its return value becomes the
	// per-connection handler state threaded through every later call.
	// Per-connection configuration lives on the Listener's
	// ListenerOptions and on view itself, so there is no separate opts
	// argument here.
	Init(view *ConnView) (state any, err error)

	// HandleText is invoked for each complete text message (a single
	// FIN=1 text frame, or a reassembled fragmented message whose UTF-8
	// validity has already been checked by the connection).
	HandleText(view *ConnView, data []byte, state any) Action

	// HandleBinary is invoked for each complete binary message.
	HandleBinary(view *ConnView, data []byte, state any) Action

	// Terminate is invoked exactly once when the connection leaves Open
	// for Closed because of a received close frame, a handler-initiated
	// close, a protocol violation, or the transport reaching EOF. A
	// transport error other than EOF (including an IdleTimeout expiry)
	// closes the connection without calling Terminate. reason is empty
	// when no textual reason is available.
	Terminate(view *ConnView, code CloseCode, reason string, state any)

	// HandleError is invoked when an Open connection has already decided
	// to close because of a frame decode error or a message-level
	// protocol violation (the close frame carries 1002, 1007 or 1009); it
	// is not invoked for handshake failures, which happen before Init.
	// This callback is purely informational and cannot veto the close.
	HandleError(view *ConnView, err error, state any) Action
}

// BaseHandler provides no-op defaults for Handler's optional callbacks
// (spec.md Section 9: "Default implementations for optional operations
// come from a base shim"). Embed it in a Handler implementation that
// only cares about HandleText/HandleBinary/Init.
type BaseHandler struct{}

// Terminate does nothing.
func (BaseHandler) Terminate(*ConnView, CloseCode, string, any) {}

// HandleError always continues, leaving the mandated protocol action
// (reject or close) as the only effect of the error.
func (BaseHandler) HandleError(_ *ConnView, _ error, state any) Action {
	return Continue(state)
}

// actionKind distinguishes the three shapes a Handler callback may
// return (spec.md Section 4.4).
type actionKind int

const (
	actionContinue actionKind = iota
	actionReply
	actionClose
)

// Action is the result of a Handler data-frame callback.
//
// Use the Continue, Reply, Close and CloseWithCode constructors rather
// than constructing an Action directly.
type Action struct {
	kind    actionKind
	state   any
	payload []byte
	code    CloseCode
	reason  string
}

// Continue updates the handler state and proceeds to the next frame
// without sending anything.
func Continue(state any) Action {
	return Action{kind: actionContinue, state: state}
}

// Reply sends payload back to the peer as a frame matching the inbound
// message's type (text answers text, binary answers binary), then
// updates the handler state and proceeds.
func Reply(payload []byte, state any) Action {
	return Action{kind: actionReply, state: state, payload: payload}
}

// Close sends a close frame with code 1000 (Normal Closure), closes the
// transport, and invokes Terminate.
func Close(state any) Action {
	return Action{kind: actionClose, state: state, code: CloseNormalClosure, reason: "Normal Closure"}
}

// CloseWithCode sends a close frame carrying code and reason, closes the
// transport, and invokes Terminate.
func CloseWithCode(code CloseCode, reason string, state any) Action {
	return Action{kind: actionClose, state: state, code: code, reason: reason}
}
