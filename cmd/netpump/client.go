package main

import (
	"fmt"

	"netpump/application/game"
	"netpump/codec"
	"netpump/session/client"
	"netpump/transport/udp"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
)

func newClientCmd(a *app) *cobra.Command {
	var (
		host   string
		port   int
		name   string
		frames int
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Join the server with a headless player",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Client.Host = host
			}
			if flags.Changed("port") {
				cfg.Client.Port = port
			}
			if flags.Changed("name") {
				cfg.Client.Name = name
			}
			if flags.Changed("frames") {
				cfg.Client.Frames = frames
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := a.logger.With("component", "client")

			c := client.New(udp.Dialer{}, codec.JSON[game.Message](), logger, client.Options{
				Receive: client.ReceiveOptions{
					MaxPacketSize: cfg.Network.MaxPacketSize,
					QueueLimit:    cfg.Network.QueueLimit,
					DropMalformed: cfg.Network.DropMalformed,
				},
			})

			bot := game.NewBot(clock.New(), logger.With("component", "bot"), game.BotOptions{
				Name:          cfg.Client.Name,
				World:         game.Vec{cfg.World.Width, cfg.World.Height},
				Speed:         cfg.Client.Speed,
				FrameInterval: cfg.Client.FrameInterval,
				Frames:        cfg.Client.Frames,
			})

			if err := c.Run(cmd.Context(), cfg.Client.Addr(), bot.Run); err != nil {
				return err
			}

			id, joined := bot.ID()
			if !joined {
				fmt.Fprintf(cmd.OutOrStdout(), "%s never joined %s\n", cfg.Client.Name, cfg.Client.Addr())
				return nil
			}
			pos := bot.Position()
			fmt.Fprintf(cmd.OutOrStdout(), "%s played %d frames as player %d, last position (%.0f, %.0f), %d players online\n",
				cfg.Client.Name, bot.Frames(), id, pos[0], pos[1], len(bot.World().Players))
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "server host")
	cmd.Flags().IntVar(&port, "port", 0, "server port")
	cmd.Flags().StringVar(&name, "name", "", "player name")
	cmd.Flags().IntVar(&frames, "frames", 0, "frames to play, 0 plays until interrupted")
	return cmd
}
