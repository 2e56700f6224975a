package http1

import (
	"strconv"

	"github.com/indigo-web/streamhttp/http"
	"github.com/indigo-web/streamhttp/http/proto"
	"github.com/indigo-web/streamhttp/internal/httpchars"
	"github.com/indigo-web/utils/strcomp"
)

const (
	contentLength    = "Content-Length"
	transferEncoding = "Transfer-Encoding"
	chunkedCoding    = "chunked"
)

// Renderer serializes request headers into the wire format. The body never
// passes through it: framing headers are derived from the request's transfer
// mode, and the payload itself is streamed separately.
type Renderer struct {
	buff []byte
}

func NewRenderer(buff []byte) *Renderer {
	return &Renderer{
		buff: buff[:0],
	}
}

// Render serializes the request line, the header fields and the terminating
// blank line. Content-Length and Transfer-Encoding are appended implicitly
// according to the request's transfer mode unless the caller already set them.
//
// The returned slice is valid until the next call.
func (r *Renderer) Render(req *http.Request) []byte {
	r.buff = r.buff[:0]
	r.renderRequestLine(req)

	for _, pair := range req.Headers.Unwrap() {
		r.renderHeader(pair.Key, pair.Value)
	}

	switch req.Mode {
	case http.TransferFixed:
		if !req.Headers.Has(contentLength) {
			r.buff = append(r.buff, contentLength...)
			r.buff = append(r.buff, httpchars.COLONSP...)
			r.buff = strconv.AppendInt(r.buff, int64(req.ContentLength), 10)
			r.crlf()
		}
	case http.TransferChunked:
		if !hasChunked(req.Headers.Values(transferEncoding)) {
			r.renderHeader(transferEncoding, chunkedCoding)
		}
	}

	r.crlf()

	return r.buff
}

func (r *Renderer) renderRequestLine(req *http.Request) {
	r.buff = append(r.buff, req.Method.String()...)
	r.sp()
	r.buff = append(r.buff, req.Path...)
	r.sp()
	r.buff = append(r.buff, proto.ToBytes(req.Proto)...)
	r.crlf()
}

// renderHeader appends the pair to the buffer, with CRLF in the end.
func (r *Renderer) renderHeader(key, value string) {
	r.buff = append(r.buff, key...)
	r.buff = append(r.buff, httpchars.COLONSP...)
	r.buff = append(r.buff, value...)
	r.crlf()
}

func (r *Renderer) sp() {
	r.buff = append(r.buff, httpchars.SP...)
}

func (r *Renderer) crlf() {
	r.buff = append(r.buff, httpchars.CRLF...)
}

func hasChunked(values []string) bool {
	for _, value := range values {
		if strcomp.EqualFold(value, chunkedCoding) {
			return true
		}
	}

	return false
}
