package websocket

import (
	"bytes"
	"errors"
	"strings"
)

// HandshakeRequest is the parsed HTTP/1.1 upgrade request (spec.md
// Section 3): a case-insensitive mapping from lowercased header name to
// an ordered list of comma-split, trimmed values, plus the request
// path and query string parsed from the request-target.
type HandshakeRequest struct {
	Path     string
	RawQuery string
	Headers  map[string][]string
}

// header returns the value list for name (case-insensitive), or nil.
func (r *HandshakeRequest) header(name string) []string {
	return r.Headers[strings.ToLower(name)]
}

// parseHandshake incrementally parses an HTTP/1.1 upgrade request from
// the front of buf.
//
// Three outcomes:
//   - complete: req != nil, rest holds the bytes after the terminating
//     blank line, err == nil.
//   - incomplete: req == nil, rest == buf (unchanged), err == nil. The
//     caller should retry once more bytes have arrived.
//   - malformed: req == nil, rest == buf, err != nil.
//
// The parser never reads past the terminating blank CRLF; anything
// after it — the start of the WebSocket frame stream — is returned
// untouched as rest.
func parseHandshake(buf []byte) (req *HandshakeRequest, rest []byte, err error) {
	lineEnd := bytes.Index(buf, crlf)
	if lineEnd < 0 {
		return nil, buf, nil
	}

	parts := bytes.SplitN(buf[:lineEnd], []byte(" "), 3)
	if len(parts) != 3 {
		return nil, buf, ErrInvalidHTTPVersion
	}
	method, target, version := string(parts[0]), string(parts[1]), string(parts[2])

	if method != "GET" {
		return nil, buf, ErrInvalidMethod
	}
	if !strings.HasPrefix(target, "/") {
		return nil, buf, ErrInvalidPath
	}
	if version != "HTTP/1.1" {
		return nil, buf, ErrInvalidHTTPVersion
	}

	path, rawQuery, _ := strings.Cut(target, "?")

	headers := make(map[string][]string)
	pos := lineEnd + len(crlf)

	for {
		idx := bytes.Index(buf[pos:], crlf)
		if idx < 0 {
			return nil, buf, nil // incomplete: headers not yet fully arrived
		}
		if idx == 0 {
			pos += len(crlf)
			break
		}

		line := buf[pos : pos+idx]
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return nil, buf, ErrHeaderSyntax
		}

		name := strings.ToLower(strings.TrimSpace(string(line[:colon])))
		value := strings.TrimSpace(string(line[colon+1:]))
		for _, v := range strings.Split(value, ",") {
			headers[name] = append(headers[name], strings.TrimSpace(v))
		}

		pos += idx + len(crlf)
	}

	return &HandshakeRequest{Path: path, RawQuery: rawQuery, Headers: headers}, buf[pos:], nil
}

var crlf = []byte("\r\n")

// containsToken reports whether any element of values equals token,
// case-insensitively.
func containsToken(values []string, token string) bool {
	for _, v := range values {
		if strings.EqualFold(v, token) {
			return true
		}
	}
	return false
}

// validateHandshake checks the required headers in the deterministic
// precedence order spec.md Section 4.2 defines.
func validateHandshake(req *HandshakeRequest) error {
	if !containsToken(req.header("upgrade"), "websocket") {
		return ErrMissingUpgrade
	}
	if !containsToken(req.header("connection"), "upgrade") {
		return ErrMissingConnection
	}
	if key := req.header("sec-websocket-key"); len(key) == 0 || key[0] == "" {
		return ErrMissingSecKey
	}
	if version := req.header("sec-websocket-version"); len(version) != 1 || version[0] != "13" {
		return ErrInvalidVersion
	}
	if len(req.header("host")) == 0 {
		return ErrHeaderNotEnough
	}
	return nil
}

// negotiateSubprotocol returns the first of serverProtos that also
// appears in the client's Sec-WebSocket-Protocol header, or "" if there
// is no configured list or no match. Subprotocol negotiation is not
// required for acceptance (spec.md Section 1 Non-goals); this is a
// best-effort convenience the handler may ignore.
func negotiateSubprotocol(req *HandshakeRequest, serverProtos []string) string {
	if len(serverProtos) == 0 {
		return ""
	}
	clientProtos := req.header("sec-websocket-protocol")
	for _, server := range serverProtos {
		for _, client := range clientProtos {
			if client == server {
				return server
			}
		}
	}
	return ""
}

// acceptResponse builds the 101 Switching Protocols response for a
// validated handshake (spec.md Section 4.2/6).
func acceptResponse(clientKey, subprotocol string) []byte {
	var b strings.Builder
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Accept: ")
	b.WriteString(computeAcceptKey(clientKey))
	b.WriteString("\r\n")
	if subprotocol != "" {
		b.WriteString("Sec-WebSocket-Protocol: ")
		b.WriteString(subprotocol)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// rejectResponse builds the canned error response for a handshake parse
// or validation failure (spec.md Section 4.2): invalid_path maps to 404,
// everything else maps to 400.
func rejectResponse(err error) []byte {
	if errors.Is(err, ErrInvalidPath) {
		return []byte("HTTP/1.1 404 Not Found\r\n\r\n")
	}
	return []byte("HTTP/1.1 400 Bad Request\r\n\r\n")
}
