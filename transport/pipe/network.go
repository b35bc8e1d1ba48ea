package pipe

import (
	"context"
	"math/rand/v2"
	"netpump/transport"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// Filter decides whether a datagram is delivered. Returning false drops it.
type Filter func(from, to transport.Addr, payload []byte) bool

type Options struct {
	// InboxSize is the number of undelivered datagrams an endpoint holds
	// before it starts dropping. Defaults to 64.
	InboxSize uint
	// MaxDatagramSize defaults to 65507, the UDP over IPv4 limit.
	MaxDatagramSize uint
	// DialHost is the host of addresses given to dialed conns. Defaults to 127.0.0.1.
	DialHost string

	Filter Filter
}

func (o *Options) setDefaults() {
	if o.InboxSize == 0 {
		o.InboxSize = 64
	}
	if o.MaxDatagramSize == 0 {
		o.MaxDatagramSize = 65507
	}
	if o.DialHost == "" {
		o.DialHost = "127.0.0.1"
	}
}

// Network is an in-memory datagram network.
type Network struct {
	clock clock.Clock
	opts  Options

	mu        sync.Mutex
	endpoints map[transport.Addr]*endpoint
	ports     map[string]*transport.PortTable // per host.
}

func NewNetwork(clock clock.Clock, opts Options) *Network {
	opts.setDefaults()
	return &Network{
		clock:     clock,
		opts:      opts,
		endpoints: make(map[transport.Addr]*endpoint),
		ports:     make(map[string]*transport.PortTable),
	}
}

var _ transport.Dialer = (*Network)(nil)
var _ transport.PacketListener = (*Network)(nil)

// SetFilter replaces the delivery filter. nil delivers everything.
func (nw *Network) SetFilter(f Filter) {
	nw.mu.Lock()
	defer nw.mu.Unlock()
	nw.opts.Filter = f
}

// Dial binds an ephemeral address and connects it to addr.
// Nothing needs to listen on addr, datagrams to it are just lost.
func (nw *Network) Dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if addr.IsZero() || addr.Port == 0 {
		return nil, errors.Wrapf(transport.ErrNetUnreachable, "dialing %s", addr)
	}

	ep, err := nw.bind(transport.Addr{Host: nw.opts.DialHost})
	if err != nil {
		return nil, errors.Wrap(err, "binding local address")
	}

	return &conn{endpoint: ep, remote: addr}, nil
}

func (nw *Network) ListenPacket(ctx context.Context, addr transport.Addr) (transport.PacketConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ep, err := nw.bind(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}

	return &packetConn{endpoint: ep}, nil
}

func (nw *Network) bind(addr transport.Addr) (*endpoint, error) {
	nw.mu.Lock()
	defer nw.mu.Unlock()

	table, ok := nw.ports[addr.Host]
	if !ok {
		table = transport.NewPortTable(transport.EphemeralPortOptions{
			Range:  [2]uint16{49152, 65535},
			Rand:   func() uint16 { return uint16(rand.Uint32()) },
			MaxTry: 64,
		})
		nw.ports[addr.Host] = table
	}

	ok, port, release := table.Occupy(addr.Port)
	if !ok {
		return nil, transport.ErrAddrAlreadyInUse
	}

	ep := &endpoint{
		network:   nw,
		addr:      transport.Addr{Host: addr.Host, Port: port},
		inbox:     make(chan datagram, nw.opts.InboxSize),
		closed:    make(chan struct{}),
		release:   release,
		rdeadLine: newChanDeadLine(nw.clock),
	}
	nw.endpoints[ep.addr] = ep

	return ep, nil
}

func (nw *Network) unregister(ep *endpoint) {
	nw.mu.Lock()
	defer nw.mu.Unlock()

	if nw.endpoints[ep.addr] == ep {
		delete(nw.endpoints, ep.addr)
	}
}

func (nw *Network) deliver(d datagram, to transport.Addr) {
	nw.mu.Lock()
	dst, ok := nw.endpoints[to]
	filter := nw.opts.Filter
	nw.mu.Unlock()

	if !ok {
		return
	}
	if filter != nil && !filter(d.from, to, d.payload) {
		return
	}

	select {
	case dst.inbox <- d:
	default:
		// Inbox is full. Drop it like a socket buffer would.
	}
}
