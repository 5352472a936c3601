// Package integration dials a live wsproto Listener with a real
// third-party WebSocket client, exercising the wire protocol end to
// end instead of just the internal frame codec.
package integration

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	wsproto "github.com/latticeproto/wsproto/websocket"
)

type echoHandler struct {
	wsproto.BaseHandler
}

func (echoHandler) Init(*wsproto.ConnView) (any, error) { return nil, nil }

func (echoHandler) HandleText(_ *wsproto.ConnView, data []byte, state any) wsproto.Action {
	return wsproto.Reply(data, state)
}

func (echoHandler) HandleBinary(_ *wsproto.ConnView, data []byte, state any) wsproto.Action {
	return wsproto.Reply(data, state)
}

func startEchoServer(t *testing.T) string {
	t.Helper()
	ln, err := wsproto.Listen("127.0.0.1:0", echoHandler{}, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go ln.Serve()
	t.Cleanup(func() { ln.Shutdown() })
	return "ws://" + ln.Addr().String() + "/"
}

func TestIntegration_TextEchoRoundTrip(t *testing.T) {
	url := startEchoServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello from gorilla")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msgType != websocket.TextMessage || string(data) != "hello from gorilla" {
		t.Errorf("expected echoed text, got type=%d data=%q", msgType, data)
	}
}

func TestIntegration_BinaryEchoRoundTrip(t *testing.T) {
	url := startEchoServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msgType != websocket.BinaryMessage || string(data) != string(payload) {
		t.Errorf("expected echoed binary, got type=%d data=%v", msgType, data)
	}
}

func TestIntegration_PingPong(t *testing.T) {
	url := startEchoServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	pongReceived := make(chan string, 1)
	conn.SetPongHandler(func(appData string) error {
		pongReceived <- appData
		return nil
	})

	if err := conn.WriteControl(websocket.PingMessage, []byte("are you there"), time.Now().Add(time.Second)); err != nil {
		t.Fatalf("WriteControl: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		// gorilla surfaces control frames through the read loop only
		// via the registered handler; a plain read returns a timeout
		// error once the deadline is reached with nothing else
		// queued. Fall through to the channel check below.
		_ = err
	}

	select {
	case got := <-pongReceived:
		if got != "are you there" {
			t.Errorf("expected pong payload %q, got %q", "are you there", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive a pong for the ping")
	}
}

func TestIntegration_FragmentedMessageReassembly(t *testing.T) {
	url := startEchoServer(t)

	// A small write buffer makes gorilla flush the message as several
	// continuation frames instead of one buffered frame.
	dialer := websocket.Dialer{WriteBufferSize: 8}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	w, err := conn.NextWriter(websocket.TextMessage)
	if err != nil {
		t.Fatalf("NextWriter: %v", err)
	}
	if _, err := w.Write([]byte("fragment-one-")); err != nil {
		t.Fatalf("write fragment: %v", err)
	}
	if _, err := w.Write([]byte("fragment-two")); err != nil {
		t.Fatalf("write fragment: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msgType != websocket.TextMessage || string(data) != "fragment-one-fragment-two" {
		t.Errorf("expected reassembled text, got type=%d data=%q", msgType, data)
	}
}

func TestIntegration_CloseHandshake(t *testing.T) {
	url := startEchoServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	if err := conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("WriteControl: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected a normal closure close error, got %v", err)
	}
}
