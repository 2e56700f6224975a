package streamhttp

import (
	"io"
	"sync"

	"github.com/indigo-web/streamhttp/config"
	"github.com/indigo-web/streamhttp/http"
	"github.com/indigo-web/streamhttp/http/status"
	"github.com/indigo-web/streamhttp/transport"
)

// Client owns a single transport connection and issues request/response stream
// pairs over it. The connection is established lazily on the first MakeRequest
// and is single-exchange-at-a-time: a second MakeRequest before the current
// exchange finishes is rejected with status.ErrExchangeInFlight.
//
// Shutdown fires the client-wide cancellation signal, closes the connection
// and waits until outstanding stream operations unblock.
type Client struct {
	cfg  *config.Config
	addr string
	dial func() (transport.Client, error)

	mu       sync.Mutex
	conn     transport.Client
	connErr  error
	exchange *exchange
	shutdown bool
	inflight sync.WaitGroup

	done chan struct{}
	once sync.Once
}

type exchange struct {
	request  *RequestStream
	response *ResponseStream
}

func (e *exchange) finished() bool {
	return e == nil || (e.request.terminal() && e.response.terminal())
}

// New returns a client that connects to addr over TCP on the first request.
func New(addr string, optionalCfg ...*config.Config) *Client {
	c := newClient(optionalCfg)
	c.addr = addr
	c.dial = func() (transport.Client, error) {
		return transport.Dial(
			addr, c.cfg.NET.ReadTimeout, c.cfg.NET.WriteTimeout, c.cfg.NET.ReadBufferSize,
		)
	}

	return c
}

// NewOver returns a client driving an already established transport connection.
// The connection is owned by the client from now on: nobody else may touch it,
// and Shutdown closes it.
func NewOver(conn transport.Client, optionalCfg ...*config.Config) *Client {
	c := newClient(optionalCfg)
	c.conn = conn

	return c
}

func newClient(optionalCfg []*config.Config) *Client {
	cfg := config.Default()
	if len(optionalCfg) > 0 {
		cfg = optionalCfg[0]
	}

	return &Client{
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// MakeRequest binds a new (RequestStream, ResponseStream) pair to the
// connection, connecting the transport first if it isn't yet. The request
// header is not transmitted until the first write operation on the
// RequestStream.
func (c *Client) MakeRequest(req *http.Request) (*RequestStream, *ResponseStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.shutdown:
		return nil, nil, status.ErrShutdown
	case !c.exchange.finished():
		return nil, nil, status.ErrExchangeInFlight
	}

	if c.connErr != nil {
		// the previous exchange poisoned the connection. Re-dial if we can,
		// otherwise the client is of no use anymore
		if c.dial == nil {
			return nil, nil, c.connErr
		}

		c.conn.Close()
		c.conn, c.connErr = nil, nil
	}

	if c.conn == nil {
		conn, err := c.dial()
		if err != nil {
			return nil, nil, err
		}

		c.conn = conn
	}

	request := newRequestStream(c, c.conn, req)
	response := newResponseStream(c, c.conn, c.cfg)
	c.exchange = &exchange{request: request, response: response}

	return request, response, nil
}

// Request is a convenience shortcut: it transmits the request header, forwards
// the whole input as the body, signals the end of it and returns the response
// stream ready to be consumed. A nil input stands for no body at all.
func (c *Client) Request(req *http.Request, input io.Reader) (*ResponseStream, error) {
	request, response, err := c.MakeRequest(req)
	if err != nil {
		return nil, err
	}

	if input != nil {
		buff := make([]byte, c.cfg.NET.ReadBufferSize)

		for {
			n, err := input.Read(buff)
			if n > 0 {
				if err := request.SendSome(buff[:n]); err != nil {
					c.discard(request, err)
					return nil, err
				}
			}

			switch err {
			case nil:
			case io.EOF:
				return response, request.SendEOF()
			default:
				// the body is cut off mid-transmission, the exchange cannot
				// be completed anymore
				c.discard(request, err)
				return nil, err
			}
		}
	}

	return response, request.SendEOF()
}

// Shutdown fires the cancellation signal, closes the transport and unblocks
// any pending read or write on the outstanding streams with status.ErrShutdown
// rather than leaving them hanging. The call returns once the in-flight
// operations have drained.
func (c *Client) Shutdown() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.shutdown = true
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()

		c.inflight.Wait()
	})

	return nil
}

// Done exposes the cancellation signal. The channel is closed once Shutdown
// is called.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// begin registers a stream operation, so Shutdown can wait it out. The error
// is non-nil if the client is already shut down.
func (c *Client) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return status.ErrShutdown
	}

	c.inflight.Add(1)

	return nil
}

func (c *Client) end() {
	c.inflight.Done()
}

// poison marks the connection unusable for further exchanges. The next
// MakeRequest establishes a fresh one.
func (c *Client) poison(err error) {
	c.mu.Lock()
	if c.connErr == nil {
		c.connErr = err
	}
	c.mu.Unlock()
}

// failExchange puts both streams of the current exchange into a terminal
// failed state and poisons the connection.
func (c *Client) failExchange(err error) {
	c.poison(err)
	c.abandonExchange(err)
}

// abandonExchange makes both streams of the current exchange terminal without
// touching the connection.
func (c *Client) abandonExchange(err error) {
	c.mu.Lock()
	e := c.exchange
	c.mu.Unlock()

	if e != nil {
		e.request.markFailed(err)
		e.response.markFailed(err)
	}
}

// discard terminates the exchange after a failure on the caller's side. If part
// of the request already hit the wire, the connection is poisoned as well,
// otherwise it stays usable for the next exchange.
func (c *Client) discard(request *RequestStream, err error) {
	if request.headerSent {
		c.failExchange(err)
		return
	}

	c.abandonExchange(err)
}

// resolve maps a transport failure to status.ErrShutdown in case it was
// inflicted by the cancellation signal, so the caller can tell an intentional
// abort from a genuine I/O error.
func (c *Client) resolve(err error) error {
	select {
	case <-c.done:
		return status.ErrShutdown
	default:
		return err
	}
}
