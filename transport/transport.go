package transport

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
)

type Protocol string

const (
	UDP Protocol = "udp"
)

// Addr identifies one datagram endpoint.
// The zero value is the absent address.
type Addr struct {
	Host string
	Port uint16
}

func NewAddr(host string, port uint16) Addr { return Addr{Host: host, Port: port} }

// ParseAddr parses "host:port". IPv6 hosts must be bracketed.
func ParseAddr(s string) (Addr, error) {
	host, rawPort, err := net.SplitHostPort(s)
	if err != nil {
		return Addr{}, errors.Wrapf(err, "parsing address %q", s)
	}

	port, err := strconv.ParseUint(rawPort, 10, 16)
	if err != nil {
		return Addr{}, errors.Wrapf(err, "parsing port of %q", s)
	}

	return Addr{Host: host, Port: uint16(port)}, nil
}

func (a Addr) IsZero() bool { return a == Addr{} }

func (a Addr) String() string {
	if a.IsZero() {
		return "<none>"
	}
	return net.JoinHostPort(a.Host, strconv.FormatUint(uint64(a.Port), 10))
}
