// Package udp adapts the operating system's UDP sockets to the transport interfaces.
package udp

import (
	"context"
	"net"
	"net/netip"
	"os"
	"sync"
	"syscall"
	"time"

	"netpump/transport"

	"github.com/pkg/errors"
)

type Dialer struct {
	// LocalAddr to bind before connecting. Zero lets the system choose.
	LocalAddr transport.Addr
}

var _ transport.Dialer = Dialer{}

func (d Dialer) Dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	nd := net.Dialer{}
	if !d.LocalAddr.IsZero() {
		laddr, err := net.ResolveUDPAddr(string(transport.UDP), d.LocalAddr.String())
		if err != nil {
			return nil, errors.Wrap(err, "resolving local address")
		}
		nd.LocalAddr = laddr
	}

	c, err := nd.DialContext(ctx, string(transport.UDP), addr.String())
	if err != nil {
		return nil, errors.Wrapf(convertErr(err), "dialing %s", addr)
	}

	return &conn{UDPConn: c.(*net.UDPConn)}, nil
}

type Listener struct{}

var _ transport.PacketListener = Listener{}

func (Listener) ListenPacket(ctx context.Context, addr transport.Addr) (transport.PacketConn, error) {
	var lc net.ListenConfig
	c, err := lc.ListenPacket(ctx, string(transport.UDP), addr.String())
	if err != nil {
		return nil, errors.Wrapf(convertErr(err), "listening on %s", addr)
	}

	return &packetConn{UDPConn: c.(*net.UDPConn)}, nil
}

type conn struct {
	*net.UDPConn
	once sync.Once
}

var _ transport.Conn = (*conn)(nil)

func (c *conn) Read(p []byte) (int, error) {
	n, err := c.UDPConn.Read(p)
	return n, convertErr(err)
}

func (c *conn) Write(p []byte) (int, error) {
	n, err := c.UDPConn.Write(p)
	return n, convertErr(err)
}

// Close is idempotent.
func (c *conn) Close() (err error) {
	c.once.Do(func() { err = c.UDPConn.Close() })
	return err
}

func (c *conn) LocalAddr() transport.Addr  { return fromNetAddr(c.UDPConn.LocalAddr()) }
func (c *conn) RemoteAddr() transport.Addr { return fromNetAddr(c.UDPConn.RemoteAddr()) }

func (c *conn) SetReadDeadLine(t time.Time) { _ = c.UDPConn.SetReadDeadline(t) }

type packetConn struct {
	*net.UDPConn
	once sync.Once
}

var _ transport.PacketConn = (*packetConn)(nil)

func (p *packetConn) ReadFrom(b []byte) (int, transport.Addr, error) {
	n, addr, err := p.UDPConn.ReadFromUDPAddrPort(b)
	if err != nil {
		return n, transport.Addr{}, convertErr(err)
	}
	return n, fromAddrPort(addr), nil
}

func (p *packetConn) WriteTo(b []byte, addr transport.Addr) (int, error) {
	ap, err := toAddrPort(addr)
	if err != nil {
		return 0, err
	}
	n, err := p.UDPConn.WriteToUDPAddrPort(b, ap)
	return n, convertErr(err)
}

// Close is idempotent.
func (p *packetConn) Close() (err error) {
	p.once.Do(func() { err = p.UDPConn.Close() })
	return err
}

func (p *packetConn) LocalAddr() transport.Addr { return fromNetAddr(p.UDPConn.LocalAddr()) }

func (p *packetConn) SetReadDeadLine(t time.Time) { _ = p.UDPConn.SetReadDeadline(t) }

func fromNetAddr(addr net.Addr) transport.Addr {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok || udpAddr == nil {
		return transport.Addr{}
	}
	return fromAddrPort(udpAddr.AddrPort())
}

func fromAddrPort(ap netip.AddrPort) transport.Addr {
	// Dual stack sockets report IPv4 peers as ::ffff:a.b.c.d.
	return transport.Addr{Host: ap.Addr().Unmap().String(), Port: ap.Port()}
}

// toAddrPort needs a literal IP. Hosts are resolved once by Dial, not per datagram.
func toAddrPort(addr transport.Addr) (netip.AddrPort, error) {
	ip, err := netip.ParseAddr(addr.Host)
	if err != nil {
		return netip.AddrPort{}, errors.Wrapf(transport.ErrNetUnreachable, "%s is not an IP address", addr.Host)
	}
	return netip.AddrPortFrom(ip, addr.Port), nil
}

// convertErr maps socket errors onto the transport sentinels.
func convertErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, net.ErrClosed):
		return transport.ErrConnClosed
	case errors.Is(err, os.ErrDeadlineExceeded):
		return transport.ErrDeadLineExceeded
	case errors.Is(err, syscall.ECONNREFUSED):
		return transport.ErrConnRefused
	case errors.Is(err, syscall.EADDRINUSE):
		return transport.ErrAddrAlreadyInUse
	case errors.Is(err, syscall.EMSGSIZE):
		return transport.ErrMessageTooLarge
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		return transport.ErrNetUnreachable
	}
	return err
}
