package http

import (
	"github.com/indigo-web/streamhttp/http/headers"
	"github.com/indigo-web/streamhttp/http/method"
	"github.com/indigo-web/streamhttp/http/proto"
)

// TransferMode defines how the request body is framed on the wire.
type TransferMode uint8

const (
	// TransferNone marks a bodiless request. No framing headers are rendered,
	// and any attempt to send body bytes is rejected.
	TransferNone TransferMode = iota
	// TransferFixed frames the body with a Content-Length header. The caller is
	// trusted to send exactly the declared amount of bytes.
	TransferFixed
	// TransferChunked frames the body with chunked transfer encoding.
	TransferChunked
)

// Request is a caller-built request header. It is treated as immutable once
// handed over to Client.MakeRequest, so a single instance may be safely reused
// for subsequent exchanges.
type Request struct {
	Method        method.Method
	Path          string
	Proto         proto.Proto
	Headers       *headers.Headers
	Mode          TransferMode
	ContentLength int
}

func NewRequest() *Request {
	return &Request{
		Method:  method.GET,
		Path:    "/",
		Proto:   proto.HTTP11,
		Headers: headers.New(),
	}
}

func (r *Request) WithMethod(m method.Method) *Request {
	r.Method = m
	return r
}

func (r *Request) WithPath(path string) *Request {
	r.Path = path
	return r
}

func (r *Request) WithHeader(key, value string) *Request {
	r.Headers.Add(key, value)
	return r
}

// WithContentLength declares a fixed-length body of n bytes.
func (r *Request) WithContentLength(n int) *Request {
	r.Mode = TransferFixed
	r.ContentLength = n
	return r
}

// Chunked declares a body of unknown length, transferred with chunked encoding.
func (r *Request) Chunked() *Request {
	r.Mode = TransferChunked
	return r
}
