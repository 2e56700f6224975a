package http

import (
	"github.com/indigo-web/streamhttp/http/headers"
	"github.com/indigo-web/streamhttp/http/proto"
	"github.com/indigo-web/streamhttp/http/status"
)

// Response holds the parsed response metadata. The fields are filled in by the
// response parser and must be treated as read-only once the header section is
// complete.
type Response struct {
	Protocol proto.Proto
	Code     status.Code
	Status   status.Status
	Headers  *headers.Headers
	// ContentLength is -1 for chunked bodies and 0 when the header is absent,
	// in which case the response is considered bodiless.
	ContentLength int
	Chunked       bool
	HasTrailer    bool
}

func NewResponse(hdrs *headers.Headers) *Response {
	return &Response{
		Headers:       hdrs,
		ContentLength: -1,
	}
}
