// Package pipe implements an in-memory datagram network.
// Like UDP, datagrams to unknown addresses vanish and a full inbox drops
// the newest datagram.
package pipe

import (
	"netpump/transport"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type datagram struct {
	from    transport.Addr
	payload []byte
}

// endpoint is one bound address on the network.
type endpoint struct {
	network *Network
	addr    transport.Addr

	inbox chan datagram

	closed chan struct{}
	once   sync.Once // making sure not to close closed channel.

	release func() // frees the port.

	rdeadLine *chanDeadLine
}

func (e *endpoint) Close() error {
	e.once.Do(func() {
		close(e.closed)
		e.network.unregister(e)
		e.release()
	})
	return nil
}

func (e *endpoint) readFrom(b []byte) (n int, from transport.Addr, err error) {
	if err := e.checkReadOK(); err != nil {
		return 0, transport.Addr{}, err
	}

	select {
	case d := <-e.inbox:
		// The rest of a datagram that doesn't fit is discarded.
		n := copy(b, d.payload)
		return n, d.from, nil
	case <-e.closed:
		return 0, transport.Addr{}, transport.ErrConnClosed
	case <-e.rdeadLine.wait():
		return 0, transport.Addr{}, transport.ErrDeadLineExceeded
	}
}

func (e *endpoint) writeTo(b []byte, to transport.Addr) (n int, err error) {
	if isClosed(e.closed) {
		return 0, transport.ErrConnClosed
	}

	if uint(len(b)) > e.network.opts.MaxDatagramSize {
		return 0, transport.ErrMessageTooLarge
	}

	// Copy so the caller can reuse b.
	c := make([]byte, len(b))
	copy(c, b)

	e.network.deliver(datagram{from: e.addr, payload: c}, to)
	return len(b), nil
}

func (e *endpoint) checkReadOK() error {
	switch {
	case isClosed(e.closed):
		return transport.ErrConnClosed
	case isClosed(e.rdeadLine.wait()):
		return transport.ErrDeadLineExceeded
	}
	return nil
}

func (e *endpoint) LocalAddr() transport.Addr    { return e.addr }
func (e *endpoint) SetReadDeadLine(t time.Time) { e.rdeadLine.set(t) }

// conn is an endpoint talking to one remote address.
type conn struct {
	*endpoint
	remote transport.Addr
}

var _ transport.Conn = (*conn)(nil)

func (c *conn) RemoteAddr() transport.Addr { return c.remote }

// Read skips datagrams from anyone but the remote, like a connected UDP socket.
func (c *conn) Read(b []byte) (n int, err error) {
	for {
		n, from, err := c.readFrom(b)
		if err != nil {
			return 0, err
		}
		if from == c.remote {
			return n, nil
		}
	}
}

func (c *conn) Write(b []byte) (n int, err error) {
	return c.writeTo(b, c.remote)
}

// packetConn is an endpoint talking to anyone.
type packetConn struct {
	*endpoint
}

var _ transport.PacketConn = (*packetConn)(nil)

func (p *packetConn) ReadFrom(b []byte) (n int, addr transport.Addr, err error) {
	return p.readFrom(b)
}

func (p *packetConn) WriteTo(b []byte, addr transport.Addr) (n int, err error) {
	return p.writeTo(b, addr)
}

type chanDeadLine struct {
	clock clock.Clock

	t *clock.Timer
	m sync.Mutex

	closed chan struct{}
}

func newChanDeadLine(clock clock.Clock) *chanDeadLine {
	return &chanDeadLine{
		clock:  clock,
		closed: make(chan struct{}),
	}
}

func (d *chanDeadLine) set(t time.Time) {
	d.m.Lock()
	defer d.m.Unlock()

	if d.t != nil {
		// Stop existing timer.
		d.t.Stop()
	}
	d.t = nil

	if isClosed(d.closed) {
		d.closed = make(chan struct{})
	}

	if t.IsZero() {
		// zero value means no limit.
		return
	}

	if d.clock.Until(t) <= 0 {
		close(d.closed)
		return
	}

	closed := d.closed
	d.t = d.clock.AfterFunc(d.clock.Until(t), func() {
		d.m.Lock()
		defer d.m.Unlock()
		// A stopped timer may still fire once.
		if !isClosed(closed) {
			close(closed)
		}
	})
}

func (d *chanDeadLine) wait() <-chan struct{} {
	d.m.Lock()
	defer d.m.Unlock()
	return d.closed
}

func isClosed(c <-chan struct{}) bool {
	select {
	case <-c: // c will only fire at closed state.
		return true
	default:
		return false
	}
}
