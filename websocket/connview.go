package websocket

import "net/url"

// ConnView is the read-only snapshot of connection identity and
// handshake metadata passed to Handler callbacks (spec.md Section 4.5).
// A Handler must not reach through it to the transport; all outbound
// traffic goes through the Conn's Send/Close methods.
type ConnView struct {
	// ID is a process-local, monotonically increasing identifier,
	// convenient for handler-side bookkeeping (e.g. room membership)
	// that doesn't want to key maps by *Conn directly.
	ID uint64

	// RemoteAddr is the peer address reported by the transport.
	RemoteAddr string

	// Path is the request-target's path component, e.g. "/chat".
	Path string

	// Query holds the request-target's query parameters, parsed once at
	// handshake acceptance.
	Query url.Values

	// Subprotocol is the negotiated Sec-WebSocket-Protocol value, or ""
	// if none was requested or none matched.
	Subprotocol string

	conn *Conn
}

// Send returns the Conn this view belongs to, the only sanctioned path
// for outbound traffic (spec.md Section 5: "A handler MUST NOT
// read/write the transport directly").
func (v *ConnView) Send() *Conn {
	return v.conn
}
