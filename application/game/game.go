// Package game implements a small multiplayer world on top of the session packages.
//
// Players join by name, get an id and a spawn point, and report their position
// every frame. The server broadcasts every player's name and position each tick.
package game

import (
	"context"
	"log/slog"
	"maps"
	"math/rand/v2"

	"netpump/session/server"
	"netpump/transport"
)

type Options struct {
	// Width and height of the world. Defaults to 800x600.
	World Vec
	// Spawn picks the position of a newly joined player.
	// Defaults to a random point in the world.
	Spawn func(world Vec) Vec
}

func (o *Options) setDefaults() {
	if o.World == (Vec{}) {
		o.World = Vec{800, 600}
	}
	if o.Spawn == nil {
		o.Spawn = randomSpawn
	}
}

func randomSpawn(world Vec) Vec {
	return Vec{
		float64(rand.IntN(max(int(world[0]), 1))),
		float64(rand.IntN(max(int(world[1]), 1))),
	}
}

// Game is the server side of the world. It is only used from the tick task.
type Game struct {
	logger *slog.Logger
	opts   Options

	ids     map[transport.Addr]int // in order of first packet.
	players map[int]Player
}

func New(logger *slog.Logger, opts Options) *Game {
	opts.setDefaults()

	return &Game{
		logger:  logger,
		opts:    opts,
		ids:     make(map[transport.Addr]int),
		players: make(map[int]Player),
	}
}

// Tick handles every received packet and publishes the resulting world.
func (g *Game) Tick(ctx context.Context, srv *server.Server[Message]) error {
	for p := range srv.Packets() {
		g.handle(srv, p)
	}

	srv.SetState(g.State())
	return nil
}

// State returns a copy of the world as broadcast to clients.
func (g *Game) State() Message {
	state := NewState()
	maps.Copy(state.Players, g.players)
	return state
}

func (g *Game) handle(srv *server.Server[Message], p server.Packet[Message]) {
	id := g.idOf(p.Addr)

	switch p.Value.Event {
	case EventJoin:
		pos := g.opts.Spawn(g.opts.World)
		srv.Clients().Add(p.Addr)
		g.players[id] = Player{Name: p.Value.Name, Position: pos}
		srv.SendTo(p.Addr, Joined(id, pos))

		g.logger.Info("player joined", "id", id, "name", p.Value.Name, "remote", p.Addr)

	case EventMove:
		player, ok := g.players[id]
		if !ok || p.Value.Position == nil {
			g.logger.Debug("ignoring move", "id", id, "remote", p.Addr)
			return
		}
		player.Position = *p.Value.Position
		g.players[id] = player

	default:
		g.logger.Debug("ignoring event", "event", p.Value.Event, "remote", p.Addr)
	}
}

func (g *Game) idOf(addr transport.Addr) int {
	id, ok := g.ids[addr]
	if !ok {
		id = len(g.ids)
		g.ids[addr] = id
	}
	return id
}
