package test

import (
	"context"
	"netpump/transport"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

// DatagramTestSuite checks the contract shared by every datagram transport.
// Embedders set Dialer and Listener in SetupTest after calling this SetupTest.
type DatagramTestSuite struct {
	suite.Suite

	Dialer   transport.Dialer
	Listener transport.PacketListener
	// Host to listen on. Port is always ephemeral.
	Host  string
	Clock clock.Clock

	Client transport.Conn
	Server transport.PacketConn

	done  chan struct{}
	timer *time.Timer
}

func (s *DatagramTestSuite) SetupTest() {
	s.done = make(chan struct{})
	s.Clock = clock.New() // Use real-time timer for now.

	s.timer = time.AfterFunc(time.Second, func() {
		select {
		case <-s.done:
		default:
			s.Fail("timeout exceeded")
		}
	})
}

// Connect binds the server and dials it. Call it at the end of SetupTest.
func (s *DatagramTestSuite) Connect() {
	ctx := context.Background()

	var err error
	s.Server, err = s.Listener.ListenPacket(ctx, transport.Addr{Host: s.Host})
	s.Require().NoError(err)

	s.Client, err = s.Dialer.Dial(ctx, s.Server.LocalAddr())
	s.Require().NoError(err)
}

func (s *DatagramTestSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())
	s.NoError(s.Client.Close())
	s.NoError(s.Server.Close())
	close(s.done)
	s.timer.Stop()
}

func (s *DatagramTestSuite) TestWriteReadFrom() {
	data := []byte("Hello, World!")

	n, err := s.Client.Write(data)
	s.Require().NoError(err)
	s.Equal(len(data), n)

	buf := make([]byte, 64)
	n, from, err := s.Server.ReadFrom(buf)
	s.Require().NoError(err)
	s.Equal(data, buf[:n])
	s.Equal(s.Client.LocalAddr(), from)
}

func (s *DatagramTestSuite) TestWriteToRead() {
	// The server only learns the client's address from a datagram.
	_, err := s.Client.Write([]byte("ping"))
	s.Require().NoError(err)

	buf := make([]byte, 64)
	_, from, err := s.Server.ReadFrom(buf)
	s.Require().NoError(err)

	data := []byte("pong")
	n, err := s.Server.WriteTo(data, from)
	s.Require().NoError(err)
	s.Equal(len(data), n)

	n, err = s.Client.Read(buf)
	s.Require().NoError(err)
	s.Equal(data, buf[:n])
}

func (s *DatagramTestSuite) TestDatagramBoundaries() {
	inputs := [][]byte{[]byte("first"), []byte("second"), []byte("third")}
	for _, input := range inputs {
		_, err := s.Client.Write(input)
		s.Require().NoError(err)
	}

	buf := make([]byte, 64)
	for _, expected := range inputs {
		n, _, err := s.Server.ReadFrom(buf)
		s.Require().NoError(err)
		s.Equal(expected, buf[:n])
	}
}

func (s *DatagramTestSuite) TestShortBuffer() {
	_, err := s.Client.Write([]byte("truncated"))
	s.Require().NoError(err)
	_, err = s.Client.Write([]byte("next"))
	s.Require().NoError(err)

	short := make([]byte, 5)
	n, _, err := s.Server.ReadFrom(short)
	s.Require().NoError(err)
	s.Equal([]byte("trunc"), short[:n])

	// The rest of the first datagram is gone.
	buf := make([]byte, 64)
	n, _, err = s.Server.ReadFrom(buf)
	s.Require().NoError(err)
	s.Equal([]byte("next"), buf[:n])
}

func (s *DatagramTestSuite) TestClose() {
	s.Require().NoError(s.Client.Close())

	buf := make([]byte, 10)

	n, err := s.Client.Read(buf)
	s.ErrorIs(err, transport.ErrConnClosed)
	s.Zero(n)

	n, err = s.Client.Write(buf)
	s.ErrorIs(err, transport.ErrConnClosed)
	s.Zero(n)

	s.Require().NoError(s.Server.Close())

	n, _, err = s.Server.ReadFrom(buf)
	s.ErrorIs(err, transport.ErrConnClosed)
	s.Zero(n)

	n, err = s.Server.WriteTo(buf, s.Client.LocalAddr())
	s.ErrorIs(err, transport.ErrConnClosed)
	s.Zero(n)
}

func (s *DatagramTestSuite) TestReadBeforeClose() {
	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := s.Client.Read(make([]byte, 10))
		s.ErrorIs(err, transport.ErrConnClosed)
	}()
	go func() {
		defer wg.Done()
		_, _, err := s.Server.ReadFrom(make([]byte, 10))
		s.ErrorIs(err, transport.ErrConnClosed)
	}()

	time.Sleep(50 * time.Millisecond)
	s.Require().NoError(s.Client.Close())
	s.Require().NoError(s.Server.Close())
}

func (s *DatagramTestSuite) TestReadDeadLine() {
	s.Client.SetReadDeadLine(s.Clock.Now().Add(-time.Second))

	b := make([]byte, 1)
	n, err := s.Client.Read(b)
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
	s.Zero(n)

	s.Server.SetReadDeadLine(s.Clock.Now().Add(20 * time.Millisecond))
	n, _, err = s.Server.ReadFrom(b)
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
	s.Zero(n)
}

func (s *DatagramTestSuite) TestAddr() {
	s.Equal(s.Server.LocalAddr(), s.Client.RemoteAddr())
	s.NotEqual(s.Client.LocalAddr(), s.Server.LocalAddr())
	s.NotZero(s.Server.LocalAddr().Port)
}

func (s *DatagramTestSuite) TestListenAddrInUse() {
	_, err := s.Listener.ListenPacket(context.Background(), s.Server.LocalAddr())
	s.ErrorIs(err, transport.ErrAddrAlreadyInUse)
}
