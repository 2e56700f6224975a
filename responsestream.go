package streamhttp

import (
	"io"
	"strings"
	"sync"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/streamhttp/config"
	"github.com/indigo-web/streamhttp/http"
	"github.com/indigo-web/streamhttp/http/headers"
	"github.com/indigo-web/streamhttp/http/status"
	parse "github.com/indigo-web/streamhttp/internal/parser/http1"
	"github.com/indigo-web/streamhttp/transport"
	"github.com/indigo-web/utils/buffer"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
)

// ResponseStream owns the inbound half of an exchange. The response is parsed
// incrementally as transport reads arrive: no operation ever waits for more
// bytes than the next read has to offer. Body bytes that happen to share a
// transport read with the header section are retained in the prefetch chain
// and delivered before anything freshly read, so no byte is read from the
// transport twice or dropped.
//
// The stream assumes single-reader discipline: RecvSome must not be called
// concurrently.
type ResponseStream struct {
	client        *Client
	conn          transport.Client
	parser        *parse.Parser
	chunkedParser *chunkedbody.Parser
	resp          *http.Response

	prefetch     [][]byte
	headerDone   bool
	bodyComplete bool

	// mu guards the terminal flags, which the outbound half of the exchange may
	// flip from another goroutine on a failure.
	mu     sync.Mutex
	done   bool
	failed error

	bytesLeft int
	received  uint64

	pending []byte
	readErr error
}

func newResponseStream(client *Client, conn transport.Client, cfg *config.Config) *ResponseStream {
	resp := http.NewResponse(headers.NewPrealloc(cfg.HTTP.HeadersPrealloc))

	return &ResponseStream{
		client: client,
		conn:   conn,
		parser: parse.NewParser(
			resp,
			*buffer.NewBuffer[byte](
				cfg.HTTP.ResponseLineSize.Default, cfg.HTTP.ResponseLineSize.Maximal,
			),
			*buffer.NewBuffer[byte](
				cfg.HTTP.HeadersSpace.Default, cfg.HTTP.HeadersSpace.Maximal,
			),
		),
		chunkedParser: chunkedbody.NewParser(chunkedbody.DefaultSettings()),
		resp:          resp,
	}
}

// PrefetchHeaders reads from the transport until the header section is fully
// parsed. Body bytes arriving in the same read are decoded into the prefetch
// chain, surplus raw bytes are pushed back to the transport. Once the headers
// are parsed the call is a no-op.
func (r *ResponseStream) PrefetchHeaders() error {
	if _, failed := r.state(); failed != nil {
		return failed
	}

	if r.headerDone {
		return nil
	}

	if err := r.client.begin(); err != nil {
		return err
	}
	defer r.client.end()

	for {
		data, err := r.read()
		if err != nil {
			return r.fail(err)
		}

		completed, rest, err := r.parser.Parse(data)
		if err != nil {
			return r.fail(err)
		}

		if !completed {
			continue
		}

		r.headerDone = true
		r.initBody()

		if len(rest) > 0 {
			piece, err := r.consumeBody(rest)
			if err != nil {
				return err
			}

			if len(piece) > 0 {
				r.prefetch = append(r.prefetch, piece)
			}
		}

		return nil
	}
}

// IsHeaderDone reports whether the header section is fully parsed.
func (r *ResponseStream) IsHeaderDone() bool {
	return r.headerDone
}

// Response returns the parsed response metadata. Calling it before the headers
// are parsed is a programming error.
func (r *ResponseStream) Response() *http.Response {
	if !r.headerDone {
		panic("BUG: response stream: headers are not parsed yet")
	}

	return r.resp
}

// Headers is a shorthand for Response().Headers.
func (r *ResponseStream) Headers() *headers.Headers {
	return r.Response().Headers
}

// RecvSome returns the next available piece of body bytes, stripped of any
// framing metadata. An empty piece with a nil error is a legitimate,
// non-terminal outcome (e.g. a read that yielded framing bytes only), and may
// in principle recur as long as the peer keeps sending framing: each call
// still consumes exactly one transport read, so progress is bounded by the
// transport. The end of the body is reported via io.EOF, possibly alongside
// the final piece; afterwards IsDone reports true.
//
// The returned slice is valid until the next transport read.
func (r *ResponseStream) RecvSome() ([]byte, error) {
	done, failed := r.state()
	if failed != nil {
		return nil, failed
	}

	if done {
		return nil, io.EOF
	}

	if !r.headerDone {
		if err := r.PrefetchHeaders(); err != nil {
			return nil, err
		}
	}

	if len(r.prefetch) > 0 {
		piece := r.prefetch[0]
		r.prefetch = r.prefetch[1:]

		if len(r.prefetch) == 0 && r.bodyComplete {
			r.finish()
			return piece, io.EOF
		}

		return piece, nil
	}

	if r.bodyComplete {
		r.finish()
		return nil, io.EOF
	}

	if err := r.client.begin(); err != nil {
		return nil, err
	}
	defer r.client.end()

	data, err := r.read()
	if err != nil {
		return nil, r.fail(err)
	}

	piece, err := r.consumeBody(data)
	if err != nil {
		return nil, err
	}

	if r.bodyComplete {
		r.finish()
		return piece, io.EOF
	}

	return piece, nil
}

// IsDone reports whether the whole message is received and parsed: for chunked
// bodies the zero-length terminator chunk was met, for fixed-length ones the
// declared amount of bytes arrived.
func (r *ResponseStream) IsDone() bool {
	done, _ := r.state()
	return done
}

// Body drains the rest of the body into a single slice.
func (r *ResponseStream) Body() ([]byte, error) {
	var body []byte

	for {
		piece, err := r.RecvSome()
		body = append(body, piece...)
		switch err {
		case nil:
		case io.EOF:
			return body, nil
		default:
			return nil, err
		}
	}
}

// String drains the rest of the body into a string.
func (r *ResponseStream) String() (string, error) {
	body, err := r.Body()
	return uf.B2S(body), err
}

// JSON drains the body and unmarshals it into the model. Responses with a
// Content-Type other than application/json are rejected with
// status.ErrUnsupportedMedia.
func (r *ResponseStream) JSON(model any) error {
	if err := r.PrefetchHeaders(); err != nil {
		return err
	}

	contentType := r.resp.Headers.Value("content-type")
	if len(contentType) > 0 && !strings.HasPrefix(contentType, "application/json") {
		return status.ErrUnsupportedMedia
	}

	body, err := r.Body()
	if err != nil {
		return err
	}

	iterator := json.ConfigDefault.BorrowIterator(body)
	iterator.ReadVal(model)
	err = iterator.Error
	json.ConfigDefault.ReturnIterator(iterator)

	if err == io.EOF {
		err = nil
	}

	return err
}

// Reader adapts the stream to io.Reader.
func (r *ResponseStream) Reader() io.Reader {
	return responseStreamReader{r}
}

// initBody prepares body framing accounting right after the header section
// is complete.
func (r *ResponseStream) initBody() {
	if !r.resp.Chunked {
		r.bytesLeft = r.resp.ContentLength
		if r.bytesLeft == 0 {
			r.bodyComplete = true
		}
	}
}

// consumeBody extracts body bytes from a raw transport read, stripping chunk
// framing, and pushes the surplus belonging to whatever comes next back to
// the transport.
func (r *ResponseStream) consumeBody(data []byte) ([]byte, error) {
	if r.resp.Chunked {
		chunk, extra, err := r.chunkedParser.Parse(data, r.resp.HasTrailer)
		switch err {
		case nil:
		case io.EOF:
			r.bodyComplete = true
		default:
			r.fail(status.ErrBadChunk)
			return nil, status.ErrBadChunk
		}

		if err := r.account(len(chunk)); err != nil {
			return nil, err
		}

		r.conn.Pushback(extra)

		return chunk, nil
	}

	body := data
	if len(body) >= r.bytesLeft {
		body, data = body[:r.bytesLeft], body[r.bytesLeft:]
		r.conn.Pushback(data)
		r.bytesLeft = 0
		r.bodyComplete = true
	} else {
		r.bytesLeft -= len(body)
	}

	if err := r.account(len(body)); err != nil {
		return nil, err
	}

	return body, nil
}

func (r *ResponseStream) account(n int) error {
	r.received += uint64(n)
	if max := r.client.cfg.Body.MaxSize; max > 0 && r.received > max {
		r.fail(status.ErrBodyTooLarge)
		return status.ErrBodyTooLarge
	}

	return nil
}

func (r *ResponseStream) read() ([]byte, error) {
	select {
	case <-r.client.done:
		return nil, status.ErrShutdown
	default:
	}

	data, err := r.conn.Read()
	if err != nil {
		if err == io.EOF {
			err = status.ErrConnectionClosed
		}

		return nil, r.client.resolve(err)
	}

	return data, nil
}

// fail puts the stream into a terminal failed state. The connection is
// poisoned as well: with the response cut short, the framing of anything that
// follows on the wire is unknown.
func (r *ResponseStream) fail(err error) error {
	r.client.failExchange(err)

	r.mu.Lock()
	if r.failed == nil {
		r.failed = err
	}
	failed := r.failed
	r.mu.Unlock()

	return failed
}

func (r *ResponseStream) finish() {
	r.mu.Lock()
	r.done = true
	r.mu.Unlock()
}

func (r *ResponseStream) state() (done bool, failed error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.done, r.failed
}

func (r *ResponseStream) markFailed(err error) {
	r.mu.Lock()
	if !r.done && r.failed == nil {
		r.failed = err
	}
	r.mu.Unlock()
}

func (r *ResponseStream) terminal() bool {
	done, failed := r.state()
	return done || failed != nil
}

type responseStreamReader struct {
	stream *ResponseStream
}

func (r responseStreamReader) Read(into []byte) (n int, err error) {
	s := r.stream

	if len(s.pending) == 0 && s.readErr == nil {
		s.pending, s.readErr = s.RecvSome()
	}

	n = copy(into, s.pending)
	s.pending = s.pending[n:]

	if len(s.pending) == 0 && s.readErr != nil {
		err = s.readErr
	}

	return n, err
}
