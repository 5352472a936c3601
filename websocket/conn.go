package websocket

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/eapache/queue"
	"github.com/sugawarayuuta/sonnet"
)

// connState is the connection's position in the Handshake -> Open ->
// Closed lifecycle (spec.md Section 4.4).
type connState int32

const (
	stateHandshake connState = iota
	stateOpen
	stateClosed
)

var lastConnID uint64

// outboundRequest is one entry in a Conn's outbound mailbox: either a
// plain frame write, or a frame write followed by tearing the
// connection down (used by Close/CloseWithCode).
type outboundRequest struct {
	frameBytes  []byte
	closeAfter  bool
	closeCode   CloseCode
	closeReason string
}

// Conn is a single WebSocket connection actor (spec.md Section 4.4/5):
// one goroutine owns the transport, the inbound buffer, the protocol
// state and the handler state, and runs a select loop over inbound
// bytes, a signaled outbound mailbox, and transport errors — the same
// shape as this package's connection hub, narrowed to a single peer.
// Every other goroutine reaches the connection only through SendText,
// SendBinary, Close and CloseWithCode, which enqueue onto the mailbox
// instead of touching the transport.
type Conn struct {
	id      uint64
	netConn net.Conn
	writer  *bufio.Writer
	handler Handler

	opts *ListenerOptions

	state        atomic.Int32
	handlerState any
	view         *ConnView

	inbuf []byte

	fragActive bool
	fragOpcode byte
	fragBuf    []byte

	inboundCh      chan []byte
	transportErrCh chan error

	outMu    sync.Mutex
	outQueue *queue.Queue
	outSig   chan struct{}

	closeOnce sync.Once
	closedCh  chan struct{}
}

// newConn constructs a connection actor for a freshly accepted socket.
// It does not start the actor goroutine; call serve for that.
func newConn(netConn net.Conn, handler Handler, opts *ListenerOptions) *Conn {
	c := &Conn{
		id:             atomic.AddUint64(&lastConnID, 1),
		netConn:        netConn,
		writer:         bufio.NewWriterSize(netConn, opts.WriteBufferSize),
		handler:        handler,
		opts:           opts,
		inboundCh:      make(chan []byte, 8),
		transportErrCh: make(chan error, 1),
		outQueue:       queue.New(),
		outSig:         make(chan struct{}, 1),
		closedCh:       make(chan struct{}),
	}
	c.state.Store(int32(stateHandshake))
	return c
}

func (c *Conn) getState() connState  { return connState(c.state.Load()) }
func (c *Conn) setState(s connState) { c.state.Store(int32(s)) }

// serve runs the connection actor until the connection reaches Closed.
// It blocks; callers spawn it in its own goroutine, one per accepted
// connection (spec.md Section 5).
func (c *Conn) serve() {
	defer c.closeTransport()

	go c.readLoop()

	for {
		select {
		case chunk, ok := <-c.inboundCh:
			if !ok {
				return
			}
			c.handleInbound(chunk)
		case <-c.outSig:
			c.drainOutbound()
		case err := <-c.transportErrCh:
			c.handleTransportEvent(err)
			return
		}
		if c.getState() == stateClosed {
			return
		}
	}
}

// readLoop is the only goroutine that ever calls netConn.Read. It never
// touches connection state directly; it only ever feeds bytes or a
// terminal error to the actor.
func (c *Conn) readLoop() {
	buf := make([]byte, c.opts.ReadBufferSize)
	for {
		if c.opts.IdleTimeout > 0 {
			_ = c.netConn.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout))
		}
		n, err := c.netConn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.inboundCh <- chunk:
			case <-c.closedCh:
				return
			}
		}
		if err != nil {
			select {
			case c.transportErrCh <- err:
			case <-c.closedCh:
			}
			return
		}
	}
}

func (c *Conn) handleInbound(chunk []byte) {
	c.inbuf = append(c.inbuf, chunk...)
	switch c.getState() {
	case stateHandshake:
		c.stepHandshake()
	case stateOpen:
		c.stepOpen()
	}
}

// stepHandshake drives the handshake parser/validator against the
// buffered bytes (spec.md Section 4.4's Handshake-state transitions).
func (c *Conn) stepHandshake() {
	req, rest, err := parseHandshake(c.inbuf)
	if err != nil {
		_ = c.writeRaw(rejectResponse(err))
		c.setState(stateClosed)
		return
	}
	if req == nil {
		return // incomplete: c.inbuf already holds everything seen so far
	}

	if verr := validateHandshake(req); verr != nil {
		_ = c.writeRaw(rejectResponse(verr))
		c.setState(stateClosed)
		return
	}
	if c.opts.CheckOrigin != nil && !c.opts.CheckOrigin(req) {
		_ = c.writeRaw(rejectResponse(ErrOriginDenied))
		c.setState(stateClosed)
		return
	}

	subprotocol := negotiateSubprotocol(req, c.opts.Subprotocols)
	clientKey := req.header("sec-websocket-key")[0]
	if err := c.writeRaw(acceptResponse(clientKey, subprotocol)); err != nil {
		c.setState(stateClosed)
		return
	}

	c.view = c.buildView(req, subprotocol)
	state, ierr := c.handler.Init(c.view)
	if ierr != nil {
		c.setState(stateClosed)
		return
	}
	c.handlerState = state
	c.inbuf = rest
	c.setState(stateOpen)

	// rest may already hold pipelined frame bytes from the same segment.
	c.stepOpen()
}

func (c *Conn) buildView(req *HandshakeRequest, subprotocol string) *ConnView {
	query, _ := url.ParseQuery(req.RawQuery)
	return &ConnView{
		ID:          c.id,
		RemoteAddr:  c.netConn.RemoteAddr().String(),
		Path:        req.Path,
		Query:       query,
		Subprotocol: subprotocol,
		conn:        c,
	}
}

// stepOpen drives the frame decoder against the buffered bytes and
// dispatches each decoded frame in order (spec.md Section 4.4's Open-
// state transitions).
func (c *Conn) stepOpen() {
	frames, rest, err := decodeFrames(c.inbuf, c.opts.MaxFramePayload)
	c.inbuf = rest
	if err != nil {
		if errors.Is(err, ErrFrameTooLarge) {
			c.closeWithViolation(CloseMessageTooBig, "Message Too Big", err)
			return
		}
		c.closeWithViolation(CloseProtocolError, "Protocol error", err)
		return
	}
	for _, f := range frames {
		if !c.processFrame(f) {
			return
		}
	}
}

// processFrame handles one decoded frame and reports whether processing
// of the current batch should continue.
func (c *Conn) processFrame(f frame) bool {
	if !f.masked {
		c.closeWithViolation(CloseProtocolError, "Protocol error", ErrMaskRequired)
		return false
	}

	switch f.opcode {
	case opcodePing:
		pong, _ := encodeFrame(opcodePong, f.payload)
		_ = c.writeRaw(pong)
		return true

	case opcodePong:
		return true

	case opcodeClose:
		return c.handleCloseFrame(f)

	case opcodeText, opcodeBinary:
		return c.processDataFrame(f)

	case opcodeContinuation:
		return c.processContinuation(f)
	}
	return true
}

func (c *Conn) handleCloseFrame(f frame) bool {
	var code CloseCode
	var echo []byte
	if f.hasCloseCode {
		code = CloseCode(f.closeCode)
		echo, _ = encodeCloseFrame(f.closeCode, nil)
	} else {
		echo, _ = encodeFrame(opcodeClose, nil)
	}
	slog.Debug("websocket: peer closed connection", "id", c.id, "code", code.String())
	_ = c.writeRaw(echo)
	c.setState(stateClosed)
	c.handler.Terminate(c.view, code, "", c.handlerState)
	return false
}

func (c *Conn) processDataFrame(f frame) bool {
	if c.fragActive {
		c.closeWithViolation(CloseProtocolError, "Protocol error", ErrInterleavedDataFrame)
		return false
	}
	if f.fin {
		return c.dispatchMessage(f.opcode, f.payload)
	}
	c.fragActive = true
	c.fragOpcode = f.opcode
	c.fragBuf = append([]byte(nil), f.payload...)
	return true
}

func (c *Conn) processContinuation(f frame) bool {
	if !c.fragActive {
		c.closeWithViolation(CloseProtocolError, "Protocol error", ErrUnexpectedContinuation)
		return false
	}
	c.fragBuf = append(c.fragBuf, f.payload...)
	if !f.fin {
		return true
	}
	opcode := c.fragOpcode
	payload := c.fragBuf
	c.fragActive = false
	c.fragBuf = nil
	return c.dispatchMessage(opcode, payload)
}

// dispatchMessage delivers one complete message — either an unfragmented
// frame or a reassembled fragment sequence (spec.md Section 9's adopted
// redesign) — to the handler, after checking UTF-8 validity for text.
func (c *Conn) dispatchMessage(opcode byte, payload []byte) bool {
	if opcode == opcodeText && !utf8.Valid(payload) {
		c.closeWithViolation(CloseInvalidFramePayloadData, "invalid UTF-8", ErrInvalidUTF8)
		return false
	}

	var action Action
	if opcode == opcodeText {
		action = c.handler.HandleText(c.view, payload, c.handlerState)
	} else {
		action = c.handler.HandleBinary(c.view, payload, c.handlerState)
	}
	return c.applyAction(opcode, action)
}

func (c *Conn) applyAction(opcode byte, action Action) bool {
	c.handlerState = action.state

	switch action.kind {
	case actionContinue:
		return true

	case actionReply:
		f, _ := encodeFrame(opcode, action.payload)
		_ = c.writeRaw(f)
		return true

	case actionClose:
		cf, _ := encodeCloseFrame(uint16(action.code), []byte(action.reason))
		_ = c.writeRaw(cf)
		c.setState(stateClosed)
		c.handler.Terminate(c.view, action.code, action.reason, c.handlerState)
		return false
	}
	return true
}

// closeWithViolation reports err to the handler (informationally),
// sends a close frame carrying code/reason, and tears the connection
// down. Used for decoder errors and message-level protocol violations
// (spec.md Section 7: "malformed frame in Open -> close(1002, 'Protocol
// error')").
func (c *Conn) closeWithViolation(code CloseCode, reason string, err error) {
	slog.Debug("websocket: closing connection", "id", c.id, "code", code.String(), "cause", err)
	if c.handler != nil {
		c.handler.HandleError(c.view, err, c.handlerState)
	}
	cf, _ := encodeCloseFrame(uint16(code), []byte(reason))
	_ = c.writeRaw(cf)
	c.setState(stateClosed)
	if c.handler != nil {
		c.handler.Terminate(c.view, code, reason, c.handlerState)
	}
}

// handleTransportEvent reacts to the read loop terminating (spec.md
// Section 4.4/7): a clean EOF while Open is a transport_closed event and
// invokes Terminate; any other error closes without calling the
// handler, since the transport can no longer be trusted.
func (c *Conn) handleTransportEvent(err error) {
	if c.getState() == stateOpen && errors.Is(err, io.EOF) {
		slog.Debug("websocket: transport closed", "id", c.id, "code", CloseNormalClosure.String())
		c.handler.Terminate(c.view, CloseNormalClosure, "Normal Closure", c.handlerState)
	}
	c.setState(stateClosed)
}

// writeRaw writes one frame through the connection's buffered writer
// and flushes immediately — buffering saves nothing when every write is
// followed by a flush, but it lets ListenerOptions.WriteBufferSize size
// the allocation the way the teacher's handshake sizes its bufio.Writer.
// writeRaw is only ever called from within the actor goroutine —
// synchronously while processing an inbound event, or from
// drainOutbound — so it never races with itself.
func (c *Conn) writeRaw(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if _, err := c.writer.Write(b); err != nil {
		return err
	}
	return c.writer.Flush()
}

// drainOutbound flushes every request queued by SendText, SendBinary,
// Close and CloseWithCode, in FIFO order, so a close queued after a
// send always flushes the send first (spec.md Section 5).
func (c *Conn) drainOutbound() {
	for {
		c.outMu.Lock()
		if c.outQueue.Length() == 0 {
			c.outMu.Unlock()
			return
		}
		req, _ := c.outQueue.Remove().(*outboundRequest)
		c.outMu.Unlock()

		if c.getState() == stateClosed {
			continue
		}
		_ = c.writeRaw(req.frameBytes)
		if req.closeAfter {
			c.setState(stateClosed)
			if c.handler != nil {
				c.handler.Terminate(c.view, req.closeCode, req.closeReason, c.handlerState)
			}
		}
	}
}

func (c *Conn) enqueue(req *outboundRequest) error {
	select {
	case <-c.closedCh:
		return ErrClosed
	default:
	}
	c.outMu.Lock()
	c.outQueue.Add(req)
	c.outMu.Unlock()
	select {
	case c.outSig <- struct{}{}:
	default:
	}
	return nil
}

// SendText enqueues a text frame for delivery. Safe to call from any
// goroutine; the write itself happens on the connection's actor
// goroutine, serialized with everything else the actor does.
func (c *Conn) SendText(data []byte) error {
	f, err := encodeFrame(opcodeText, data)
	if err != nil {
		return err
	}
	return c.enqueue(&outboundRequest{frameBytes: f})
}

// SendBinary enqueues a binary frame for delivery.
func (c *Conn) SendBinary(data []byte) error {
	f, err := encodeFrame(opcodeBinary, data)
	if err != nil {
		return err
	}
	return c.enqueue(&outboundRequest{frameBytes: f})
}

// SendJSON marshals v and enqueues it as a text frame. Handlers decode
// incoming JSON themselves from the []byte HandleText already gives
// them; this is the send-side counterpart.
func (c *Conn) SendJSON(v any) error {
	data, err := sonnet.Marshal(v)
	if err != nil {
		return err
	}
	return c.SendText(data)
}

// SendPing enqueues a ping frame. The connection never sends pings of
// its own (ListenerOptions.IdleTimeout, off by default, only closes a
// connection that has gone quiet); a handler that wants keepalive
// schedules these itself, typically from a goroutine started in Init and
// stopped from Terminate.
func (c *Conn) SendPing(data []byte) error {
	if len(data) > maxControlPayload {
		return ErrControlTooLarge
	}
	f, err := encodeFrame(opcodePing, data)
	if err != nil {
		return err
	}
	return c.enqueue(&outboundRequest{frameBytes: f})
}

// Close enqueues a close frame with code 1000 (Normal Closure) and tears
// the connection down once it has been flushed.
func (c *Conn) Close() error {
	return c.CloseWithCode(CloseNormalClosure, "Normal Closure")
}

// CloseWithCode enqueues a close frame carrying code and reason.
func (c *Conn) CloseWithCode(code CloseCode, reason string) error {
	cf, err := encodeCloseFrame(uint16(code), []byte(reason))
	if err != nil {
		return err
	}
	return c.enqueue(&outboundRequest{frameBytes: cf, closeAfter: true, closeCode: code, closeReason: reason})
}

// closeTransport closes the underlying socket exactly once and wakes any
// goroutine blocked waiting on the connection to close.
func (c *Conn) closeTransport() {
	c.closeOnce.Do(func() {
		close(c.closedCh)
		_ = c.netConn.Close()
	})
}
