package game

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"netpump/codec"
	"netpump/session/client"
	"netpump/session/server"
	"netpump/transport"
	"netpump/transport/pipe"
	"netpump/transport/udp"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWrap(t *testing.T) {
	testcases := []struct {
		x, size, expected float64
	}{
		{x: 10, size: 800, expected: 10},
		{x: 800, size: 800, expected: 0},
		{x: 810, size: 800, expected: 10},
		{x: -10, size: 800, expected: 790},
		{x: -1610, size: 800, expected: 790},
	}

	for _, tc := range testcases {
		assert.Equal(t, tc.expected, wrap(tc.x, tc.size), "wrap(%v, %v)", tc.x, tc.size)
	}
}

func TestBotMove(t *testing.T) {
	bot := NewBot(clock.NewMock(), slog.New(slog.DiscardHandler), BotOptions{
		World:   Vec{800, 600},
		Speed:   100,
		Heading: Vec{1, -1},
	})
	assert.Equal(t, Vec{400, 300}, bot.Position())

	assert.Equal(t, Vec{500, 200}, bot.move(time.Second))
	assert.Equal(t, Vec{100, 400}, bot.move(4*time.Second))
}

func TestBotHandle(t *testing.T) {
	bot := NewBot(clock.NewMock(), slog.New(slog.DiscardHandler), BotOptions{})

	early := Message{Event: EventUpdate, Players: map[int]Player{0: {Name: "x", Position: Vec{1, 1}}}}
	bot.handle(early)
	_, ok := bot.ID()
	assert.False(t, ok, "updates before JOINED are ignored")
	assert.Equal(t, NewState(), bot.World())

	bot.handle(Joined(3, Vec{10, 20}))
	id, ok := bot.ID()
	assert.True(t, ok)
	assert.Equal(t, 3, id)
	assert.Equal(t, Vec{10, 20}, bot.Position())

	update := Message{Event: EventUpdate, Players: map[int]Player{3: {Name: "me", Position: Vec{30, 40}}}}
	bot.handle(update)
	assert.Equal(t, update, bot.World())
	assert.Equal(t, Vec{30, 40}, bot.Position())

	// An update without us keeps the local position.
	bot.handle(NewState())
	assert.Equal(t, Vec{30, 40}, bot.Position())
}

func runServer(t *testing.T, listener transport.PacketListener, addr transport.Addr) (*server.Server[Message], func()) {
	logger := slog.New(slog.DiscardHandler)
	clock := clock.New()

	srv := server.New(listener, codec.JSON[Message](), logger, clock, server.Options{
		TickInterval: 5 * time.Millisecond,
	})
	srv.SetState(NewState())
	game := New(logger, Options{Spawn: fixedSpawn})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(context.Background(), addr, game.Tick) }()
	require.Eventually(t, func() bool { return !srv.Addr().IsZero() }, time.Second, time.Millisecond)

	return srv, func() {
		srv.Shutdown()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Error("server did not stop")
		}
	}
}

func TestBotPlays(t *testing.T) {
	defer goleak.VerifyNone(t)

	network := pipe.NewNetwork(clock.New(), pipe.Options{})
	srv, stop := runServer(t, network, transport.NewAddr("server", 12345))
	defer stop()

	logger := slog.New(slog.DiscardHandler)
	bot := NewBot(clock.New(), logger, BotOptions{
		Name:          "bot",
		FrameInterval: 2 * time.Millisecond,
		Frames:        100,
	})
	c := client.New(network, codec.JSON[Message](), logger, client.Options{})

	require.NoError(t, c.Run(context.Background(), srv.Addr(), bot.Run))
	assert.Equal(t, 100, bot.Frames())

	id, ok := bot.ID()
	require.True(t, ok)
	assert.Equal(t, 0, id)

	world := bot.World()
	require.Contains(t, world.Players, 0)
	assert.Equal(t, "bot", world.Players[0].Name)
	assert.NotEqual(t, spawnPoint, world.Players[0].Position, "the bot moved")
}

func TestBotStopsOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	network := pipe.NewNetwork(clock.New(), pipe.Options{})
	logger := slog.New(slog.DiscardHandler)

	// Nobody listens, so the bot keeps asking to join.
	bot := NewBot(clock.New(), logger, BotOptions{Name: "lonely", FrameInterval: time.Millisecond})
	c := client.New(network, codec.JSON[Message](), logger, client.Options{})

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background(), transport.NewAddr("server", 12345), bot.Run) }()

	require.Eventually(t, func() bool { return bot.Frames() > 5 }, time.Second, time.Millisecond)
	c.Shutdown()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("client did not stop")
	}
	_, ok := bot.ID()
	assert.False(t, ok)
}

// A client joins a server over UDP on the loopback interface.
func TestJoinOverUDP(t *testing.T) {
	defer goleak.VerifyNone(t)

	addr := transport.NewAddr("127.0.0.1", 12345)
	_, stop := runServer(t, udp.Listener{}, addr)
	defer stop()

	var joined Message
	var updates []Message

	c := client.New(udp.Dialer{}, codec.JSON[Message](), slog.New(slog.DiscardHandler), client.Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Run(ctx, addr, func(ctx context.Context, c *client.Client[Message]) error {
		if err := c.WaitBound(ctx); err != nil {
			return err
		}
		if err := c.Send(Join("Alice")); err != nil {
			return err
		}

		for len(updates) < 3 {
			m, err := c.Recv(ctx)
			if err != nil {
				return err
			}
			switch m.Event {
			case EventJoined:
				joined = m
			case EventUpdate:
				updates = append(updates, m)
			}
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, ctx.Err(), "timed out")

	assert.Equal(t, Joined(0, spawnPoint), joined)
	for _, update := range updates {
		assert.Equal(t, map[int]Player{0: {Name: "Alice", Position: spawnPoint}}, update.Players)
	}
}
