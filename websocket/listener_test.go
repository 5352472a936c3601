package websocket

import (
	"net"
	"strings"
	"testing"
	"time"
)

func dialHandshake(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, err := conn.Write(validHandshakeBytes()); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read handshake response: %v", err)
	}
	if !strings.Contains(string(buf[:n]), "101 Switching Protocols") {
		t.Fatalf("expected 101 response, got %q", buf[:n])
	}
	conn.SetReadDeadline(time.Time{})
	return conn
}

func TestListener_ServeAcceptsAndEchoes(t *testing.T) {
	h := &testHandler{
		textFunc: func(v *ConnView, data []byte, state any) Action {
			return Reply(data, state)
		},
	}
	ln, err := Listen("127.0.0.1:0", h, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go ln.Serve()
	defer ln.Shutdown()

	conn := dialHandshake(t, ln.Addr().String())
	defer conn.Close()

	req := buildMaskedFrame(opcodeText, []byte("ping via tcp"), true, testMaskKey)
	if _, err := conn.Write(req); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read echoed frame: %v", err)
	}
	f, _, err := decodeOneFrame(buf[:n], 0)
	if err != nil || f == nil {
		t.Fatalf("decode echoed frame: f=%v err=%v", f, err)
	}
	if f.opcode != opcodeText || string(f.payload) != "ping via tcp" {
		t.Errorf("expected echoed text, got opcode=%d payload=%q", f.opcode, f.payload)
	}
}

func TestListener_ShutdownStopsAcceptLoop(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", &testHandler{}, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	serveDone := make(chan error, 1)
	go func() { serveDone <- ln.Serve() }()

	// Give the accept loop a chance to enter its first Accept call.
	time.Sleep(10 * time.Millisecond)

	if err := ln.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err := <-serveDone:
		if err != nil {
			t.Errorf("expected Serve to return nil after Shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}

	if _, err := net.DialTimeout("tcp", ln.Addr().String(), 200*time.Millisecond); err == nil {
		t.Error("expected the listening socket to be closed after Shutdown")
	}
}

func TestListener_RejectsBadHandshake(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", &testHandler{}, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go ln.Serve()
	defer ln.Shutdown()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("POST / HTTP/1.1\r\nHost: example.com\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if !strings.Contains(string(buf[:n]), "400 Bad Request") {
		t.Errorf("expected 400 response, got %q", buf[:n])
	}
}
