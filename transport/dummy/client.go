package dummy

import (
	"io"
	"net"

	"github.com/indigo-web/streamhttp/transport"
)

var _ transport.Client = new(CircularClient)

// CircularClient is a client that returns the scripted pieces of data,
// read-operation by read-operation, starting over once the script is over.
// Everything written into it is recorded. Used for tests.
type CircularClient struct {
	data            [][]byte
	tmp             []byte
	pointer         int
	closed, oneTime bool
	Written         []byte
}

func NewCircularClient(data ...[]byte) *CircularClient {
	return &CircularClient{
		data: data,
	}
}

func (c *CircularClient) Read() ([]byte, error) {
	if c.closed {
		return nil, io.EOF
	}

	if len(c.tmp) > 0 {
		data := c.tmp
		c.tmp = nil

		return data, nil
	}

	if c.pointer >= len(c.data) {
		if c.oneTime {
			c.closed = true
			return nil, io.EOF
		}

		c.pointer = 0
	}

	piece := c.data[c.pointer]
	c.pointer++

	return piece, nil
}

func (c *CircularClient) Pushback(takeback []byte) {
	c.tmp = takeback
}

func (c *CircularClient) Write(p []byte) (int, error) {
	c.Written = append(c.Written, p...)
	return len(p), nil
}

func (c *CircularClient) Conn() net.Conn {
	return nil
}

func (*CircularClient) Remote() net.Addr {
	return nil
}

func (c *CircularClient) Close() error {
	c.closed = true
	return nil
}

// OneTime makes the client play the script just once, returning io.EOF after.
func (c *CircularClient) OneTime() *CircularClient {
	c.oneTime = true
	return c
}

func NewNopClient() *CircularClient {
	return NewCircularClient(nil)
}

var _ transport.Client = new(StuckClient)

// StuckClient blocks every read until the client is closed, imitating a peer
// that never responds.
type StuckClient struct {
	CircularClient
	unblock chan struct{}
}

func NewStuckClient() *StuckClient {
	return &StuckClient{
		unblock: make(chan struct{}),
	}
}

func (s *StuckClient) Read() ([]byte, error) {
	<-s.unblock
	return nil, io.EOF
}

func (s *StuckClient) Close() error {
	select {
	case <-s.unblock:
	default:
		close(s.unblock)
	}

	return s.CircularClient.Close()
}

var _ transport.Client = new(BrokenClient)

// BrokenClient fails every operation with the given error.
type BrokenClient struct {
	CircularClient
	Err error
}

func NewBrokenClient(err error) *BrokenClient {
	return &BrokenClient{Err: err}
}

func (b *BrokenClient) Read() ([]byte, error) {
	return nil, b.Err
}

func (b *BrokenClient) Write([]byte) (int, error) {
	return 0, b.Err
}
