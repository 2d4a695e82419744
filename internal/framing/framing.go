// Package framing turns JSON-RPC messages into byte frames and back.
//
// Two framings are supported:
//
//	content-length : "Content-Length: N\r\n\r\n" followed by N body bytes
//	ndjson         : one JSON document per line
//
// Decoding is incremental: bytes may be fed in chunks of any size and complete
// messages are emitted as soon as they are fully buffered. Malformed headers
// and bodies are dropped without losing synchronization on later frames.
package framing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ggoodman/mcp-inspector-go/internal/jsonrpc"
)

// Kind selects a wire framing.
type Kind string

const (
	// ContentLength frames each message with a Content-Length header block.
	ContentLength Kind = "content-length"
	// NewlineDelimited writes one compact JSON document per line.
	NewlineDelimited Kind = "ndjson"
)

// DefaultMaxFrameSize bounds the body length a content-length header may
// announce. Larger announcements are treated as malformed headers.
const DefaultMaxFrameSize = 64 << 20

var (
	// ErrUnknownKind is returned by ParseKind for unsupported framings.
	ErrUnknownKind = errors.New("unknown framing")
	// ErrMissingContentLength reports a header block without a usable length.
	ErrMissingContentLength = errors.New("missing or invalid content-length header")
	// ErrFrameTooLarge reports a frame exceeding the configured maximum size.
	ErrFrameTooLarge = errors.New("frame too large")
)

// ParseKind maps a user supplied name onto a Kind. The empty string selects
// ContentLength.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ContentLength), "content_length", "lsp":
		return ContentLength, nil
	case string(NewlineDelimited), "newline", "jsonl":
		return NewlineDelimited, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Encode serializes v as compact JSON and wraps it in a frame of the given kind.
func Encode(kind Kind, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	switch kind {
	case NewlineDelimited:
		return append(body, '\n'), nil
	case ContentLength, "":
		return EncodeContentLength(body), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// EncodeContentLength prefixes body with its Content-Length header block. The
// length is the byte length of body exactly as given.
func EncodeContentLength(body []byte) []byte {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	return append(out, body...)
}

// decodeBody parses one frame body. Only bodies that are not JSON, or that
// carry neither a method nor an id, are rejected.
func decodeBody(body []byte) (jsonrpc.AnyMessage, error) {
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return jsonrpc.AnyMessage{}, err
	}
	return msg, nil
}
