// Package client implements a managed datagram connection.
//
// A [Client] owns at most one socket bound to one remote address at a time.
// While [Client.Run] is active, three tasks run next to the application:
// the lifecycle task applies Connect/Close requests, the send task drains the
// outgoing queue and the receive task fills the incoming queue.
// Delivery is best effort. Nothing is retransmitted or reordered.
package client

import (
	"context"
	"iter"
	"log/slog"
	"runtime"
	"sync"

	"netpump/codec"
	"netpump/lib/ds/queue"
	"netpump/transport"

	"github.com/pkg/errors"
)

var (
	ErrAlreadyRunning = errors.New("client is already running")
	ErrNotRunning     = errors.New("client is not running")

	errShutdown = errors.New("client shut down")
)

// AppFunc is the application task. It runs concurrently with the network
// tasks and must return soon after ctx is done.
// Returning nil ends the run like [Client.Shutdown] does.
type AppFunc[T any] func(ctx context.Context, c *Client[T]) error

// request is a pending lifecycle transition. The most recent one wins.
type request struct {
	close bool
	addr  transport.Addr
}

type Client[T any] struct {
	dialer transport.Dialer
	codec  codec.Codec[T]
	logger *slog.Logger
	opts   Options

	mu sync.Mutex

	// conn and addr always change together, and every change bumps gen.
	conn  transport.Conn
	addr  transport.Addr
	gen   uint64
	bound chan struct{} // closed on every change of conn.

	pending   *request
	requested chan struct{}

	out      queue.Queue[[]byte]
	outReady chan struct{}
	in       queue.Queue[T]
	inReady  chan struct{}

	runCtx context.Context
	cancel context.CancelCauseFunc
}

func New[T any](
	dialer transport.Dialer,
	codec codec.Codec[T],
	logger *slog.Logger,
	opts Options,
) *Client[T] {
	opts.setDefaults()

	return &Client[T]{
		dialer:    dialer,
		codec:     codec,
		logger:    logger,
		opts:      opts,
		bound:     make(chan struct{}),
		requested: make(chan struct{}, 1),
		out:       queue.New[[]byte](opts.Send.QueueLimit),
		outReady:  make(chan struct{}, 1),
		in:        queue.New[T](opts.Receive.QueueLimit),
		inReady:   make(chan struct{}, 1),
	}
}

// Connect requests binding to addr, replacing the current socket if any.
// It never blocks. If the client isn't running, it connects once Run starts.
func (c *Client[T]) Connect(addr transport.Addr) {
	c.request(request{addr: addr})
}

// Close requests unbinding. Queued packets are dropped, later sends are
// discarded and nothing is received until the next Connect.
func (c *Client[T]) Close() {
	c.request(request{close: true})
}

func (c *Client[T]) request(r request) {
	c.mu.Lock()
	c.pending = &r
	c.mu.Unlock()

	notify(c.requested)
}

// Addr returns the remote address, or the zero Addr if unbound.
func (c *Client[T]) Addr() transport.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// Closed reports whether there is no active socket.
func (c *Client[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == nil
}

// Running reports whether Run is active and not shutting down.
func (c *Client[T]) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runCtx != nil && c.runCtx.Err() == nil
}

// Send queues v for the remote address.
// If the client is closed, v is discarded and Send returns nil.
// Only encoding failures are reported.
func (c *Client[T]) Send(v T) error {
	c.mu.Lock()
	closed, gen := c.conn == nil, c.gen
	c.mu.Unlock()

	if closed {
		return nil
	}

	packet, err := c.codec.Encode(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		// Rebound while encoding. The packet was meant for the old address.
		c.mu.Unlock()
		return nil
	}
	ok := c.out.Enqueue(packet)
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("outgoing queue is full, dropping packet")
		return nil
	}

	notify(c.outReady)
	return nil
}

// Next pops the oldest received packet. It returns false if there is none.
func (c *Client[T]) Next() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, err := c.in.Dequeue()
	return v, err == nil
}

// Packets drains the received packets, oldest first.
// Iteration stops once the incoming queue is empty.
func (c *Client[T]) Packets() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok := c.Next()
			if !ok || !yield(v) {
				return
			}
		}
	}
}

// Recv waits for the next received packet.
func (c *Client[T]) Recv(ctx context.Context) (T, error) {
	for {
		if v, ok := c.Next(); ok {
			return v, nil
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-c.inReady:
		}
	}
}

// WaitBound blocks until the client has an active socket.
func (c *Client[T]) WaitBound(ctx context.Context) error {
	for {
		c.mu.Lock()
		bound, changed := c.conn != nil, c.bound
		c.mu.Unlock()

		if bound {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Pump is the application's yield point. Call it once per iteration.
// If clear is true, received packets that weren't consumed are dropped.
// The returned error is non-nil once the run is shutting down.
func (c *Client[T]) Pump(clear bool) error {
	c.mu.Lock()
	if clear {
		c.in.Clear()
	}
	ctx := c.runCtx
	c.mu.Unlock()

	if ctx == nil {
		return ErrNotRunning
	}

	runtime.Gosched()
	return ctx.Err()
}

// Shutdown ends the current run. It does nothing if the client isn't running.
func (c *Client[T]) Shutdown() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel(errShutdown)
	}
}

// Run runs app together with the network tasks and blocks until the run ends.
// If addr isn't zero, the client connects to it right away.
//
// The run ends when app returns, Shutdown is called, ctx is done, or a network
// task fails. Only the last case is reported as an error; a failing app
// reports its own error. The socket is closed before Run returns.
func (c *Client[T]) Run(ctx context.Context, addr transport.Addr, app AppFunc[T]) error {
	c.mu.Lock()
	if c.runCtx != nil {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c.runCtx, c.cancel = runCtx, cancel
	if !addr.IsZero() {
		c.pending = &request{addr: addr}
	}
	c.mu.Unlock()
	notify(c.requested)

	c.logger.Info("client started")

	var wg sync.WaitGroup
	c.spawn(&wg, runCtx, cancel, "lifecycle", c.lifecycle)
	c.spawn(&wg, runCtx, cancel, "send", c.sendLoop)
	c.spawn(&wg, runCtx, cancel, "receive", c.receiveLoop)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				cancel(errors.Errorf("application panicked: %v", r))
			}
		}()

		err := app(runCtx, c)
		switch {
		case runCtx.Err() != nil:
			// Unwinding after shutdown.
		case err != nil:
			cancel(errors.Wrap(err, "application"))
		default:
			cancel(errShutdown)
		}
	}()

	wg.Wait()

	c.mu.Lock()
	c.closeLocked()
	c.runCtx, c.cancel = nil, nil
	c.mu.Unlock()

	cause := context.Cause(runCtx)
	if errors.Is(cause, errShutdown) || ctx.Err() != nil {
		c.logger.Info("client stopped")
		return nil
	}

	c.logger.Error("client stopped", "error", cause)
	return cause
}

func (c *Client[T]) spawn(
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

// lifecycle applies pending Connect/Close requests until ctx is done.
func (c *Client[T]) lifecycle(ctx context.Context) error {
	// Closing the socket also wakes up a pending read.
	defer func() {
		c.mu.Lock()
		c.closeLocked()
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()
		r := c.pending
		c.pending = nil
		c.mu.Unlock()

		if r != nil {
			if err := c.apply(ctx, *r); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.requested:
		}
	}
}

func (c *Client[T]) apply(ctx context.Context, r request) error {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()

	if r.close {
		return nil
	}

	conn, err := c.dialer.Dial(ctx, r.addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrapf(err, "connecting to %s", r.addr)
	}

	c.mu.Lock()
	c.conn, c.addr = conn, r.addr
	c.advanceLocked()
	gen := c.gen
	c.mu.Unlock()

	c.logger.Info("bound", "remote", r.addr, "local", conn.LocalAddr(), "generation", gen)
	return nil
}

// closeLocked tears down the socket and drops every queued packet.
func (c *Client[T]) closeLocked() {
	if c.conn == nil {
		return
	}

	if err := c.conn.Close(); err != nil {
		c.logger.Warn("error when closing socket", "error", err)
	}
	c.logger.Info("unbound", "remote", c.addr, "generation", c.gen)

	c.conn, c.addr = nil, transport.Addr{}
	c.out.Clear()
	c.in.Clear()
	c.advanceLocked()
}

func (c *Client[T]) advanceLocked() {
	c.gen++
	close(c.bound)
	c.bound = make(chan struct{})
}

func (c *Client[T]) stale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen != gen
}

// sendLoop sends one queued packet per step while bound.
func (c *Client[T]) sendLoop(ctx context.Context) error {
	for {
		c.mu.Lock()
		conn, gen := c.conn, c.gen
		var packet []byte
		err := queue.ErrQueueEmpty
		if conn != nil {
			packet, err = c.out.Dequeue()
		}
		c.mu.Unlock()

		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-c.outReady:
			}
			continue
		}

		if _, err := conn.Write(packet); err != nil {
			if err := c.checkSocketErr(ctx, gen, err, "sending packet"); err != nil {
				return err
			}
		}
	}
}

// receiveLoop reads and queues packets while bound.
func (c *Client[T]) receiveLoop(ctx context.Context) error {
	buf := make([]byte, c.opts.Receive.MaxPacketSize)

	for {
		c.mu.Lock()
		conn, gen, changed := c.conn, c.gen, c.bound
		c.mu.Unlock()

		if conn == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-changed:
			}
			continue
		}

		n, err := conn.Read(buf)
		if err != nil {
			if err := c.checkSocketErr(ctx, gen, err, "receiving packet"); err != nil {
				return err
			}
			continue
		}

		v, err := c.codec.Decode(buf[:n])
		if err != nil {
			if !c.opts.Receive.DropMalformed {
				return err
			}
			c.logger.Warn("dropping malformed packet", "error", err)
			continue
		}

		c.mu.Lock()
		if c.gen != gen {
			// Read from a socket that has been replaced since.
			c.mu.Unlock()
			continue
		}
		ok := c.in.Enqueue(v)
		c.mu.Unlock()

		if !ok {
			c.logger.Debug("incoming queue is full, dropping packet")
			continue
		}
		notify(c.inReady)
	}
}

// checkSocketErr swallows errors caused by a socket being torn down and
// errors that only lost one datagram.
func (c *Client[T]) checkSocketErr(ctx context.Context, gen uint64, err error, op string) error {
	switch {
	case errors.Is(err, transport.ErrConnClosed) && (c.stale(gen) || ctx.Err() != nil):
		c.logger.Debug("socket was torn down", "op", op, "generation", gen)
		return nil
	case transport.IsTransient(err):
		c.logger.Debug("datagram lost", "op", op, "error", err)
		return nil
	}
	return errors.Wrap(err, op)
}

func notify(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}
