package framing

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/ggoodman/mcp-inspector-go/internal/jsonrpc"
)

var headerSeparator = []byte("\r\n\r\n")

// DropFunc observes frames the decoder discards. raw is the offending header
// block or body; it is only valid for the duration of the call.
type DropFunc func(raw []byte, err error)

// DecoderOption customizes a Decoder.
type DecoderOption func(*Decoder)

// WithDropFunc installs a callback invoked for every discarded frame.
func WithDropFunc(fn DropFunc) DecoderOption {
	return func(d *Decoder) {
		if fn != nil {
			d.onDrop = fn
		}
	}
}

// WithMaxFrameSize overrides DefaultMaxFrameSize.
func WithMaxFrameSize(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.maxFrame = n
		}
	}
}

// Decoder is a stateful, incremental frame parser. It is not safe for
// concurrent use; a connection owns exactly one and feeds it from its reader
// goroutine.
type Decoder struct {
	kind     Kind
	buf      []byte
	maxFrame int
	onDrop   DropFunc
}

// NewDecoder returns a Decoder for the given framing.
func NewDecoder(kind Kind, opts ...DecoderOption) *Decoder {
	if kind == "" {
		kind = ContentLength
	}
	d := &Decoder{kind: kind, maxFrame: DefaultMaxFrameSize, onDrop: func([]byte, error) {}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Buffered reports how many bytes are held waiting for a frame to complete.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Feed appends p to the internal buffer and returns every message that is now
// complete, in stream order. Incomplete trailing data stays buffered for the
// next call.
func (d *Decoder) Feed(p []byte) []jsonrpc.AnyMessage {
	d.buf = append(d.buf, p...)

	var (
		out      []jsonrpc.AnyMessage
		consumed int
	)
	if d.kind == NewlineDelimited {
		out, consumed = d.splitLines()
	} else {
		out, consumed = d.splitContentLength()
	}

	if consumed > 0 {
		n := copy(d.buf, d.buf[consumed:])
		d.buf = d.buf[:n]
	}
	return out
}

func (d *Decoder) splitContentLength() ([]jsonrpc.AnyMessage, int) {
	var out []jsonrpc.AnyMessage
	pos := 0
	for {
		rest := d.buf[pos:]
		idx := bytes.Index(rest, headerSeparator)
		if idx < 0 {
			return out, pos
		}

		bodyStart := idx + len(headerSeparator)
		n, ok := parseContentLength(rest[:idx])
		if !ok {
			// Skip the header block so we never stall on it.
			d.onDrop(rest[:idx], ErrMissingContentLength)
			pos += bodyStart
			continue
		}
		if n > d.maxFrame {
			d.onDrop(rest[:idx], ErrFrameTooLarge)
			pos += bodyStart
			continue
		}

		if len(rest) < bodyStart+n {
			return out, pos
		}

		body := rest[bodyStart : bodyStart+n]
		pos += bodyStart + n

		msg, err := decodeBody(body)
		if err != nil {
			d.onDrop(body, err)
			continue
		}
		out = append(out, msg)
	}
}

func (d *Decoder) splitLines() ([]jsonrpc.AnyMessage, int) {
	var out []jsonrpc.AnyMessage
	pos := 0
	for {
		rest := d.buf[pos:]
		idx := bytes.IndexByte(rest, '\n')
		if idx < 0 {
			if len(rest) > d.maxFrame {
				d.onDrop(rest, ErrFrameTooLarge)
				return out, len(d.buf)
			}
			return out, pos
		}

		line := bytes.TrimSpace(rest[:idx])
		pos += idx + 1
		if len(line) == 0 {
			continue
		}

		msg, err := decodeBody(line)
		if err != nil {
			d.onDrop(line, err)
			continue
		}
		out = append(out, msg)
	}
}

// parseContentLength scans a header block line by line for a case-insensitive
// Content-Length key. Other headers (e.g. Content-Type) are ignored.
func parseContentLength(header []byte) (int, bool) {
	for _, line := range strings.Split(string(header), "\r\n") {
		key, value, found := strings.Cut(line, ":")
		if !found || !strings.EqualFold(strings.TrimSpace(key), "content-length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
