package main

import (
	"time"

	"netpump/application/game"
	"netpump/codec"
	"netpump/session/server"
	"netpump/transport/udp"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
)

func newServerCmd(a *app) *cobra.Command {
	var (
		host string
		port int
		tick time.Duration
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the game server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Server.Host = host
			}
			if flags.Changed("port") {
				cfg.Server.Port = port
			}
			if flags.Changed("tick") {
				cfg.Server.TickInterval = tick
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := a.logger.With("component", "server")

			srv := server.New(udp.Listener{}, codec.JSON[game.Message](), logger, clock.New(), server.Options{
				TickInterval: cfg.Server.TickInterval,
				Receive: server.ReceiveOptions{
					MaxPacketSize: cfg.Network.MaxPacketSize,
					QueueLimit:    cfg.Network.QueueLimit,
					DropMalformed: cfg.Network.DropMalformed,
				},
			})
			srv.SetState(game.NewState())

			g := game.New(logger.With("component", "game"), game.Options{
				World: game.Vec{cfg.World.Width, cfg.World.Height},
			})

			return srv.Run(cmd.Context(), cfg.Server.Addr(), g.Tick)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "address to listen on")
	cmd.Flags().IntVar(&port, "port", 0, "port to listen on, 0 picks a free one")
	cmd.Flags().DurationVar(&tick, "tick", 0, "time between two ticks")
	return cmd
}
