package transport

import (
	"context"
	"errors"
	"time"
)

var (
	ErrConnClosed       = errors.New("connection is closed")
	ErrDeadLineExceeded = errors.New("deadline exceeded")
	ErrConnRefused      = errors.New("connection refused")
	ErrNetUnreachable   = errors.New("network is unreachable")
	ErrAddrAlreadyInUse = errors.New("address already in use")
	ErrMessageTooLarge  = errors.New("message too large")
)

// IsTransient reports whether err only means that a single datagram was lost.
// The socket stays usable after a transient error.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConnRefused) ||
		errors.Is(err, ErrNetUnreachable) ||
		errors.Is(err, ErrMessageTooLarge)
}

// Conn is a datagram socket bound to exactly one remote address.
// Each Write sends one datagram, each Read returns one datagram.
// If p is smaller than the datagram, the rest of it is discarded.
type Conn interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error

	LocalAddr() Addr
	RemoteAddr() Addr

	SetReadDeadLine(t time.Time)
}

// PacketConn is a datagram socket talking to arbitrarily many remote addresses.
type PacketConn interface {
	ReadFrom(p []byte) (n int, addr Addr, err error)
	WriteTo(p []byte, addr Addr) (n int, err error)
	Close() error

	LocalAddr() Addr

	SetReadDeadLine(t time.Time)
}

type Dialer interface {
	Dial(ctx context.Context, addr Addr) (Conn, error)
}

type PacketListener interface {
	// ListenPacket binds addr. Port 0 picks an ephemeral port.
	ListenPacket(ctx context.Context, addr Addr) (PacketConn, error)
}
