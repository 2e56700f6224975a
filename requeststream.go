package streamhttp

import (
	"io"
	"sync"

	"github.com/indigo-web/streamhttp/http"
	"github.com/indigo-web/streamhttp/http/status"
	"github.com/indigo-web/streamhttp/internal/chunked"
	"github.com/indigo-web/streamhttp/internal/gate"
	render "github.com/indigo-web/streamhttp/internal/render/http1"
	"github.com/indigo-web/streamhttp/transport"
)

// RequestStream owns the outbound half of an exchange. The header is rendered
// and transmitted lazily, along with the first write, and body pieces are
// forwarded to the transport as they come: raw for fixed-length bodies,
// chunk-encoded for chunked ones.
//
// All writes pass through a single-permit gate, so overlapping SendSome calls
// from concurrent goroutines hit the wire whole and in call order.
type RequestStream struct {
	client     *Client
	conn       transport.Client
	req        *http.Request
	renderer   *render.Renderer
	encoder    *chunked.Encoder
	gate       *gate.Gate
	headerSent bool

	// mu guards the terminal flags, which the inbound half of the exchange may
	// flip from another goroutine on a failure.
	mu     sync.Mutex
	done   bool
	failed error
}

func newRequestStream(client *Client, conn transport.Client, req *http.Request) *RequestStream {
	return &RequestStream{
		client:   client,
		conn:     conn,
		req:      req,
		renderer: render.NewRenderer(make([]byte, 0, 512)),
		encoder:  chunked.NewEncoder(client.cfg.Body.MaxChunkSize),
		gate:     gate.New(),
	}
}

// SendSome appends p to the outbound stream. If the header has not been
// transmitted yet, it goes out first. An empty p transmits nothing besides
// possibly the header and is not treated as the end of the body: that is
// signalled explicitly via SendEOF.
func (s *RequestStream) SendSome(p []byte) error {
	if err := s.gate.Enter(s.client.done); err != nil {
		return err
	}
	defer s.gate.Leave()

	done, failed := s.state()
	switch {
	case failed != nil:
		return failed
	case done:
		return status.ErrStreamDone
	case s.req.Mode == http.TransferNone && len(p) > 0:
		return status.ErrNoBody
	}

	if err := s.client.begin(); err != nil {
		return err
	}
	defer s.client.end()

	if err := s.sendHeader(); err != nil {
		return err
	}

	if len(p) == 0 {
		return nil
	}

	if s.req.Mode == http.TransferChunked {
		p = s.encoder.Encode(p)
	}

	return s.write(p)
}

// SendEOF finishes the body: for chunked bodies the zero-length terminator
// chunk goes out, for the rest there's nothing to transmit. The bodiless
// header itself is transmitted here in case no SendSome preceded. Entering the
// gate waits out any write admitted earlier, so once SendEOF returns, the
// whole request is on the wire.
func (s *RequestStream) SendEOF() error {
	if err := s.gate.Enter(s.client.done); err != nil {
		return err
	}
	defer s.gate.Leave()

	done, failed := s.state()
	switch {
	case failed != nil:
		return failed
	case done:
		return status.ErrDoubleEOF
	}

	if err := s.client.begin(); err != nil {
		return err
	}
	defer s.client.end()

	if err := s.sendHeader(); err != nil {
		return err
	}

	if s.req.Mode == http.TransferChunked {
		if err := s.write(s.encoder.Finalize()); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.done = true
	s.mu.Unlock()

	return nil
}

// IsDone reports whether SendEOF has completed.
func (s *RequestStream) IsDone() bool {
	done, _ := s.state()
	return done
}

// Writer adapts the stream to io.Writer. Closing the returned writer maps
// to SendEOF.
func (s *RequestStream) Writer() io.WriteCloser {
	return requestStreamWriter{s}
}

func (s *RequestStream) sendHeader() error {
	if s.headerSent {
		return nil
	}

	if err := s.write(s.renderer.Render(s.req)); err != nil {
		return err
	}

	s.headerSent = true

	return nil
}

func (s *RequestStream) write(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	if _, err := s.conn.Write(p); err != nil {
		err = s.client.resolve(err)
		s.client.failExchange(err)

		return err
	}

	return nil
}

func (s *RequestStream) state() (done bool, failed error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.done, s.failed
}

func (s *RequestStream) markFailed(err error) {
	s.mu.Lock()
	if !s.done && s.failed == nil {
		s.failed = err
	}
	s.mu.Unlock()
}

func (s *RequestStream) terminal() bool {
	done, failed := s.state()
	return done || failed != nil
}

type requestStreamWriter struct {
	stream *RequestStream
}

func (w requestStreamWriter) Write(p []byte) (int, error) {
	if err := w.stream.SendSome(p); err != nil {
		return 0, err
	}

	return len(p), nil
}

func (w requestStreamWriter) Close() error {
	return w.stream.SendEOF()
}
