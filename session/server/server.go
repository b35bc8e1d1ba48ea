// Package server implements a datagram socket shared by many clients.
//
// While [Server.Run] is active, the receive task queues every decoded
// datagram with its source address and the tick task runs the tick callback
// and then flushes: first the state to every registered client, then the
// packets queued with [Server.SendTo] and [Server.SendAll].
package server

import (
	"context"
	"iter"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"netpump/codec"
	"netpump/lib/ds/queue"
	"netpump/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

var (
	ErrAlreadyRunning = errors.New("server is already running")

	errShutdown = errors.New("server shut down")
)

// TickFunc is called once per tick from the tick task. Packets it queues and
// state it sets go out at the end of the same tick.
type TickFunc[T any] func(ctx context.Context, s *Server[T]) error

// Packet is a received value and the address it came from.
type Packet[T any] struct {
	Value T
	Addr  transport.Addr
}

type outgoing[T any] struct {
	value T
	to    transport.Addr
}

type Server[T any] struct {
	listener transport.PacketListener
	codec    codec.Codec[T]
	logger   *slog.Logger
	clock    clock.Clock
	opts     Options

	clients *Registry

	mu      sync.Mutex
	running bool
	conn    transport.PacketConn
	addr    transport.Addr
	state   T
	out     *queue.NaiveQueue[outgoing[T]]
	in      queue.Queue[Packet[T]]
	cancel  context.CancelCauseFunc
}

func New[T any](
	listener transport.PacketListener,
	codec codec.Codec[T],
	logger *slog.Logger,
	clock clock.Clock,
	opts Options,
) *Server[T] {
	opts.setDefaults()

	return &Server[T]{
		listener: listener,
		codec:    codec,
		logger:   logger,
		clock:    clock,
		opts:     opts,
		clients:  NewRegistry(),
		out:      queue.NewNaive[outgoing[T]](0),
		in:       queue.New[Packet[T]](opts.Receive.QueueLimit),
	}
}

// Clients returns the registry of broadcast recipients.
// Membership is up to the caller and survives across runs.
func (s *Server[T]) Clients() *Registry { return s.clients }

// Addr returns the bound local address, or the zero Addr if not running.
func (s *Server[T]) Addr() transport.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// SetState replaces the value broadcast every tick.
func (s *Server[T]) SetState(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = v
}

func (s *Server[T]) State() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SendTo queues v for addr. It goes out at the end of the current tick,
// or the next one if called outside the tick callback.
func (s *Server[T]) SendTo(addr transport.Addr, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Enqueue(outgoing[T]{value: v, to: addr})
}

// SendAll queues v for every client registered right now.
func (s *Server[T]) SendAll(v T) {
	addrs := s.clients.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, addr := range addrs {
		s.out.Enqueue(outgoing[T]{value: v, to: addr})
	}
}

// Next pops the oldest received packet. It returns false if there is none.
func (s *Server[T]) Next() (Packet[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.in.Dequeue()
	return p, err == nil
}

// Packets drains the received packets in the order they arrived.
func (s *Server[T]) Packets() iter.Seq[Packet[T]] {
	return func(yield func(Packet[T]) bool) {
		for {
			p, ok := s.Next()
			if !ok || !yield(p) {
				return
			}
		}
	}
}

// Shutdown ends the current run. It does nothing if the server isn't running.
func (s *Server[T]) Shutdown() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel(errShutdown)
	}
}

// Run binds addr and serves until ctx is done, Shutdown is called or a task
// fails. Only the last case is reported as an error.
// The socket is closed and both queues are cleared before Run returns.
func (s *Server[T]) Run(ctx context.Context, addr transport.Addr, tick TickFunc[T]) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	conn, err := s.listener.ListenPacket(ctx, addr)
	if err != nil {
		return errors.Wrapf(err, "binding %s", addr)
	}
	defer s.closeConn(conn)

	var ticks <-chan time.Time
	if s.opts.TickInterval > 0 {
		ticker := s.clock.Ticker(s.opts.TickInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	logger := s.logger.With("local", conn.LocalAddr())

	s.mu.Lock()
	s.conn, s.addr, s.cancel = conn, conn.LocalAddr(), cancel
	s.mu.Unlock()

	logger.Info("server started", "tick", s.opts.TickInterval)

	var wg sync.WaitGroup
	s.spawn(&wg, runCtx, cancel, "receive", func(ctx context.Context) error {
		return s.receiveLoop(ctx, conn)
	})
	s.spawn(&wg, runCtx, cancel, "tick", func(ctx context.Context) error {
		return s.tickLoop(ctx, conn, ticks, tick)
	})

	// Closing the socket wakes up a pending read.
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-runCtx.Done()
		s.closeConn(conn)
	}()

	wg.Wait()

	s.mu.Lock()
	s.conn, s.addr, s.cancel = nil, transport.Addr{}, nil
	s.out.Clear()
	s.in.Clear()
	s.mu.Unlock()

	cause := context.Cause(runCtx)
	if errors.Is(cause, errShutdown) || ctx.Err() != nil {
		logger.Info("server stopped")
		return nil
	}

	logger.Error("server stopped", "error", cause)
	return cause
}

func (s *Server[T]) spawn(
	wg *sync.WaitGroup,
	ctx context.Context,
	cancel context.CancelCauseFunc,
	name string,
	task func(ctx context.Context) error,
) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := task(ctx); err != nil {
			cancel(errors.Wrapf(err, "%s task", name))
		}
	}()
}

func (s *Server[T]) closeConn(conn transport.PacketConn) {
	if err := conn.Close(); err != nil {
		s.logger.Warn("error when closing socket", "error", err)
	}
}

func (s *Server[T]) receiveLoop(ctx context.Context, conn transport.PacketConn) error {
	buf := make([]byte, s.opts.Receive.MaxPacketSize)

	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if err := s.checkSocketErr(ctx, err, "receiving packet"); err != nil {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		v, err := s.codec.Decode(buf[:n])
		if err != nil {
			if !s.opts.Receive.DropMalformed {
				return errors.Wrapf(err, "packet from %s", from)
			}
			s.logger.Warn("dropping malformed packet", "remote", from, "error", err)
			continue
		}

		s.mu.Lock()
		ok := s.in.Enqueue(Packet[T]{Value: v, Addr: from})
		s.mu.Unlock()

		if !ok {
			s.logger.Debug("incoming queue is full, dropping packet", "remote", from)
		}
	}
}

// tickLoop runs one tick per value from ticks, or back to back if ticks is nil.
func (s *Server[T]) tickLoop(
	ctx context.Context,
	conn transport.PacketConn,
	ticks <-chan time.Time,
	tick TickFunc[T],
) error {
	for {
		if ticks == nil {
			runtime.Gosched()
			if ctx.Err() != nil {
				return nil
			}
		} else {
			select {
			case <-ctx.Done():
				return nil
			case <-ticks:
			}
		}

		if err := s.callTick(ctx, tick); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		runtime.Gosched()

		if err := s.flush(ctx, conn); err != nil {
			return err
		}
	}
}

func (s *Server[T]) callTick(ctx context.Context, tick TickFunc[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("tick callback panicked: %v", r)
		}
	}()

	if err := tick(ctx, s); err != nil {
		return errors.Wrap(err, "tick callback")
	}
	return nil
}

// flush sends the state to every client, then the queued packets in order.
// Packets queued while flushing go out with the next tick.
func (s *Server[T]) flush(ctx context.Context, conn transport.PacketConn) error {
	clients := s.clients.Snapshot()

	s.mu.Lock()
	state := s.state
	queued := s.out.Drain()
	s.mu.Unlock()

	if len(clients) > 0 {
		packet, err := s.codec.Encode(state)
		if err != nil {
			return errors.Wrap(err, "state")
		}
		for _, addr := range clients {
			if err := s.write(ctx, conn, packet, addr); err != nil {
				return err
			}
		}
	}

	for _, o := range queued {
		packet, err := s.codec.Encode(o.value)
		if err != nil {
			return errors.Wrapf(err, "packet to %s", o.to)
		}
		if err := s.write(ctx, conn, packet, o.to); err != nil {
			return err
		}
	}

	return nil
}

func (s *Server[T]) write(ctx context.Context, conn transport.PacketConn, packet []byte, to transport.Addr) error {
	if _, err := conn.WriteTo(packet, to); err != nil {
		return s.checkSocketErr(ctx, err, "sending packet")
	}
	return nil
}

// checkSocketErr swallows errors caused by shutting down and errors that
// only lost one datagram.
func (s *Server[T]) checkSocketErr(ctx context.Context, err error, op string) error {
	switch {
	case errors.Is(err, transport.ErrConnClosed) && ctx.Err() != nil:
		return nil
	case transport.IsTransient(err):
		s.logger.Debug("datagram lost", "op", op, "error", err)
		return nil
	}
	return errors.Wrap(err, op)
}
