package status

// Error is a value error used across the client. Code carries the response code
// the error is associated with, if any, and stays zero for purely local errors
// (cancellation, misuse, transport failures).
type Error struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return Error{
		Code:    code,
		Message: message,
	}
}

func (e Error) Error() string {
	return e.Message
}

var (
	// ErrShutdown is reported by any operation issued after (or interrupted by)
	// Client.Shutdown. It is deliberately distinct from transport errors, so the
	// caller can avoid retrying a cancelled exchange.
	ErrShutdown = NewError(0, "client: shut down")

	ErrConnectionClosed  = NewError(0, "connection closed by the peer")
	ErrExchangeInFlight  = NewError(0, "an exchange is already in flight on the connection")
	ErrStreamDone        = NewError(0, "the stream is already finished")
	ErrNoBody            = NewError(0, "the request does not declare a body")
	ErrDoubleEOF         = NewError(0, "end of the body is already signalled")
	ErrMalformedResponse = NewError(BadRequest, "malformed response line or headers")
	ErrBadChunk          = NewError(BadRequest, "malformed chunked-encoded data")
	ErrTooLongStatusLine = NewError(BadRequest, "response line is too long")
	ErrHeadersTooLarge   = NewError(RequestHeaderFieldsTooLarge, "too large headers section")
	ErrBodyTooLarge      = NewError(RequestEntityTooLarge, "response body is too large")
	ErrUnsupportedProto  = NewError(HTTPVersionNotSupported, "HTTP version not supported")
	ErrBadContentLength  = NewError(BadRequest, "invalid Content-Length value")
	ErrUnsupportedMedia  = NewError(UnsupportedMediaType, "unsupported media type")
)
