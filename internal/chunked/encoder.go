package chunked

import (
	"strconv"

	"github.com/indigo-web/streamhttp/internal/httpchars"
)

// DefaultMaxChunkSize bounds a single chunk unless configured otherwise.
const DefaultMaxChunkSize = 32 * 1024

var finalizer = []byte("0\r\n\r\n")

// Encoder produces the chunked transfer encoding wire format. It is a pure
// transformation over memory: no I/O is involved, and the only state carried
// across calls is the reusable output buffer, so the caller may feed body data
// in arbitrarily sized pieces. Each call returns a self-delimiting sequence of
// complete chunks, none of them exceeding the configured bound.
type Encoder struct {
	maxChunkSize int
	buff         []byte
	finalized    bool
}

func NewEncoder(maxChunkSize int) *Encoder {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}

	return &Encoder{
		maxChunkSize: maxChunkSize,
	}
}

// Encode frames p into one or more chunks, splitting inputs bigger than the
// bound across multiple chunks. Empty input yields no output, as a zero-length
// chunk would terminate the body prematurely.
//
// The returned slice is valid until the next call.
func (e *Encoder) Encode(p []byte) []byte {
	e.buff = e.buff[:0]

	for len(p) > 0 {
		piece := p
		if len(piece) > e.maxChunkSize {
			piece = piece[:e.maxChunkSize]
		}

		e.buff = strconv.AppendUint(e.buff, uint64(len(piece)), 16)
		e.buff = append(e.buff, httpchars.CRLF...)
		e.buff = append(e.buff, piece...)
		e.buff = append(e.buff, httpchars.CRLF...)
		p = p[len(piece):]
	}

	return e.buff
}

// Finalize emits the zero-length terminator chunk. Repeated calls return nil,
// so the terminator appears on the wire exactly once per body.
func (e *Encoder) Finalize() []byte {
	if e.finalized {
		return nil
	}

	e.finalized = true

	return finalizer
}

// Finalized reports whether the terminator has already been emitted.
func (e *Encoder) Finalized() bool {
	return e.finalized
}
