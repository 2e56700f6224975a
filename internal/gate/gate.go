package gate

import "github.com/indigo-web/streamhttp/http/status"

// Gate is a single-permit admission gate serializing writes on a connection.
// Goroutines blocked on a channel send are woken in FIFO order by the runtime,
// so entries are admitted in call order, not completion order, even when the
// callers race.
type Gate struct {
	permit chan struct{}
}

func New() *Gate {
	return &Gate{
		permit: make(chan struct{}, 1),
	}
}

// Enter blocks until the permit is acquired or cancel fires, whichever happens
// first. On cancellation status.ErrShutdown is returned and the permit stays
// untouched.
func (g *Gate) Enter(cancel <-chan struct{}) error {
	select {
	case <-cancel:
		return status.ErrShutdown
	default:
	}

	select {
	case g.permit <- struct{}{}:
		return nil
	case <-cancel:
		return status.ErrShutdown
	}
}

// Leave releases the permit. Calling it without a matching Enter is a
// programming error.
func (g *Gate) Leave() {
	select {
	case <-g.permit:
	default:
		panic("BUG: gate: Leave without a matching Enter")
	}
}
