package main

import (
	"io"
	"log/slog"

	"netpump/internal/config"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// app is the state shared by every command, set up before each run.
type app struct {
	cfgFile string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "netpump",
		Short: "Unreliable datagram game server and client",
		Long: `netpump runs a small multiplayer world over UDP.
The server broadcasts the world every tick and clients report their
position every frame. Nothing is retransmitted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./netpump.yaml or $NETPUMP_CONFIG)")

	root.AddCommand(
		newServerCmd(a),
		newClientCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) load(logOut io.Writer) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	return nil
}
