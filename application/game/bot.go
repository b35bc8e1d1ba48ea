package game

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"netpump/session/client"

	"github.com/benbjohnson/clock"
)

type BotOptions struct {
	Name string
	// World must match the server's. Defaults to 800x600.
	World Vec
	// Speed in units per second. Defaults to 100.
	Speed float64
	// Heading is the direction of movement. Defaults to {1, 0}.
	Heading Vec

	// FrameInterval defaults to 1/60 s.
	FrameInterval time.Duration
	// Frames to play before returning. 0 plays until the run ends.
	Frames int
	// RejoinInterval is how often JOIN is repeated until the server answers.
	// Defaults to one second.
	RejoinInterval time.Duration
}

func (o *BotOptions) setDefaults() {
	if o.World == (Vec{}) {
		o.World = Vec{800, 600}
	}
	if o.Speed == 0 {
		o.Speed = 100
	}
	if o.Heading == (Vec{}) {
		o.Heading = Vec{1, 0}
	}
	if o.FrameInterval == 0 {
		o.FrameInterval = time.Second / 60
	}
	if o.RejoinInterval == 0 {
		o.RejoinInterval = time.Second
	}
}

// Bot is a headless player. Bot.Run is a [client.AppFunc].
type Bot struct {
	clock  clock.Clock
	logger *slog.Logger
	opts   BotOptions

	mu       sync.Mutex
	id       *int
	position Vec
	world    Message // last UPDATE.
	frames   int
}

func NewBot(clock clock.Clock, logger *slog.Logger, opts BotOptions) *Bot {
	opts.setDefaults()

	return &Bot{
		clock:    clock,
		logger:   logger,
		opts:     opts,
		position: Vec{opts.World[0] / 2, opts.World[1] / 2},
		world:    NewState(),
	}
}

// ID returns the id the server assigned, if it did yet.
func (b *Bot) ID() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.id == nil {
		return 0, false
	}
	return *b.id, true
}

func (b *Bot) Position() Vec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position
}

// World returns the last world the server broadcast.
func (b *Bot) World() Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.world
}

func (b *Bot) Frames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames
}

// Run joins the server and plays until the configured number of frames
// has been played or ctx is done.
func (b *Bot) Run(ctx context.Context, c *client.Client[Message]) error {
	if err := c.WaitBound(ctx); err != nil {
		return err
	}

	ticker := b.clock.Ticker(b.opts.FrameInterval)
	defer ticker.Stop()

	last := b.clock.Now()
	var lastJoin time.Time

	for frame := 0; b.opts.Frames == 0 || frame < b.opts.Frames; frame++ {
		if _, joined := b.ID(); !joined && (lastJoin.IsZero() || b.clock.Since(lastJoin) >= b.opts.RejoinInterval) {
			if err := c.Send(Join(b.opts.Name)); err != nil {
				return err
			}
			lastJoin = b.clock.Now()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		now := b.clock.Now()
		dt := now.Sub(last)
		last = now

		if err := c.Pump(false); err != nil {
			return err
		}
		for m := range c.Packets() {
			b.handle(m)
		}

		if _, joined := b.ID(); joined {
			if err := c.Send(Move(b.move(dt))); err != nil {
				return err
			}
		}

		b.mu.Lock()
		b.frames++
		b.mu.Unlock()
	}

	b.logger.Info("bot finished", "name", b.opts.Name, "frames", b.Frames())
	return nil
}

func (b *Bot) handle(m Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch m.Event {
	case EventJoined:
		if m.ID == nil || m.Position == nil {
			return
		}
		id := *m.ID
		b.id = &id
		b.position = *m.Position
		b.logger.Info("joined", "name", b.opts.Name, "id", id, "position", b.position)

	case EventUpdate:
		// Updates can arrive before JOINED.
		if b.id == nil {
			return
		}
		b.world = m
		if p, ok := m.Players[*b.id]; ok {
			b.position = p.Position
		}
	}
}

// move advances the position by one frame, wrapping around the world.
func (b *Bot) move(dt time.Duration) Vec {
	b.mu.Lock()
	defer b.mu.Unlock()

	step := b.opts.Speed * dt.Seconds()
	for i := range b.position {
		b.position[i] = wrap(b.position[i]+b.opts.Heading[i]*step, b.opts.World[i])
	}
	return b.position
}

func wrap(x, size float64) float64 {
	x = math.Mod(x, size)
	if x < 0 {
		x += size
	}
	return x
}
