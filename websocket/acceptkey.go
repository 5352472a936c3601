package websocket

import (
	"crypto/sha1" // #nosec G505 - SHA-1 required verbatim by RFC 6455 Section 1.3
	"encoding/base64"
)

// websocketGUID is the fixed GUID from RFC 6455 Section 1.3, concatenated
// onto the client's key before hashing.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// computeAcceptKey computes Sec-WebSocket-Accept from the client's
// Sec-WebSocket-Key.
//
//	accept = base64(SHA-1(key || GUID))
//
// key is used verbatim as an opaque ASCII token — RFC 6455 does not
// base64-decode it before hashing, and neither does this.
//
//	computeAcceptKey("dGhlIHNhbXBsZSBub25jZQ==") == "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
func computeAcceptKey(key string) string {
	// #nosec G401 - SHA-1 required by RFC 6455 Section 1.3, not a security primitive here
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
