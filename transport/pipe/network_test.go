package pipe

import (
	"context"
	"netpump/transport"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

type NetworkTestSuite struct {
	suite.Suite

	network *Network
	server  transport.PacketConn
}

func TestNetworkTestSuite(t *testing.T) {
	suite.Run(t, new(NetworkTestSuite))
}

func (s *NetworkTestSuite) SetupTest() {
	s.network = NewNetwork(clock.New(), Options{InboxSize: 2, MaxDatagramSize: 16})

	var err error
	s.server, err = s.network.ListenPacket(context.Background(), transport.NewAddr("server", 9000))
	s.Require().NoError(err)
}

func (s *NetworkTestSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())
	s.NoError(s.server.Close())
}

func (s *NetworkTestSuite) dial(addr transport.Addr) transport.Conn {
	conn, err := s.network.Dial(context.Background(), addr)
	s.Require().NoError(err)
	s.T().Cleanup(func() { conn.Close() })
	return conn
}

func (s *NetworkTestSuite) TestListenFixedPort() {
	s.Equal(transport.NewAddr("server", 9000), s.server.LocalAddr())
}

func (s *NetworkTestSuite) TestDialEphemeral() {
	c1 := s.dial(s.server.LocalAddr())
	c2 := s.dial(s.server.LocalAddr())

	s.Equal("127.0.0.1", c1.LocalAddr().Host)
	s.NotZero(c1.LocalAddr().Port)
	s.NotEqual(c1.LocalAddr(), c2.LocalAddr())
}

func (s *NetworkTestSuite) TestDialInvalid() {
	_, err := s.network.Dial(context.Background(), transport.Addr{})
	s.ErrorIs(err, transport.ErrNetUnreachable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.network.Dial(ctx, s.server.LocalAddr())
	s.ErrorIs(err, context.Canceled)
}

func (s *NetworkTestSuite) TestUnknownDestinationIsDropped() {
	conn := s.dial(transport.NewAddr("nowhere", 1))

	n, err := conn.Write([]byte("lost"))
	s.NoError(err)
	s.Equal(4, n)
}

func (s *NetworkTestSuite) TestInboxOverflowDrops() {
	conn := s.dial(s.server.LocalAddr())

	for _, p := range []string{"a", "b", "c"} {
		_, err := conn.Write([]byte(p))
		s.Require().NoError(err)
	}

	buf := make([]byte, 16)
	for _, expected := range []string{"a", "b"} {
		n, _, err := s.server.ReadFrom(buf)
		s.Require().NoError(err)
		s.Equal(expected, string(buf[:n]))
	}

	s.server.SetReadDeadLine(clock.New().Now())
	_, _, err := s.server.ReadFrom(buf)
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
}

func (s *NetworkTestSuite) TestTooLarge() {
	conn := s.dial(s.server.LocalAddr())

	_, err := conn.Write(make([]byte, 17))
	s.ErrorIs(err, transport.ErrMessageTooLarge)
}

func (s *NetworkTestSuite) TestFilter() {
	conn := s.dial(s.server.LocalAddr())

	s.network.SetFilter(func(from, to transport.Addr, payload []byte) bool {
		return string(payload) != "drop"
	})

	_, err := conn.Write([]byte("drop"))
	s.Require().NoError(err)
	_, err = conn.Write([]byte("keep"))
	s.Require().NoError(err)

	buf := make([]byte, 16)
	n, from, err := s.server.ReadFrom(buf)
	s.Require().NoError(err)
	s.Equal("keep", string(buf[:n]))
	s.Equal(conn.LocalAddr(), from)
}

func (s *NetworkTestSuite) TestConnIgnoresStrangers() {
	conn := s.dial(s.server.LocalAddr())

	stranger, err := s.network.ListenPacket(context.Background(), transport.NewAddr("stranger", 1))
	s.Require().NoError(err)
	defer stranger.Close()

	_, err = stranger.WriteTo([]byte("spam"), conn.LocalAddr())
	s.Require().NoError(err)
	_, err = s.server.WriteTo([]byte("real"), conn.LocalAddr())
	s.Require().NoError(err)

	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	s.Require().NoError(err)
	s.Equal("real", string(buf[:n]))
}

func (s *NetworkTestSuite) TestRebindAfterClose() {
	s.Require().NoError(s.server.Close())

	server, err := s.network.ListenPacket(context.Background(), transport.NewAddr("server", 9000))
	s.Require().NoError(err)
	s.server = server
}
