// Package controller provides the commands to run a lottery node from the
// command line and to play with it.
package controller

import (
	"io"
	"os"

	"go.dedis.ch/veilroll/cli"
)

const (
	defaultFolder = ".veilroll"
	defaultPlayer = "player"
)

// miniController sets the lottery commands.
//
// - implements cli.Initializer
type miniController struct {
	out io.Writer
}

// NewController returns the initializer of the lottery commands. The commands
// print to the standard output.
func NewController() cli.Initializer {
	return miniController{out: os.Stdout}
}

// SetCommands implements cli.Initializer.
func (m miniController) SetCommands(builder cli.Builder) {
	folder := cli.StringFlag{
		Name:  "folder",
		Usage: "folder of the state and the secrets of the node",
		Value: defaultFolder,
	}

	config := cli.StringFlag{
		Name:  "config",
		Usage: "path to a YAML configuration, relative to the folder when not absolute",
	}

	cmd := builder.SetCommand("lottery")
	cmd.SetDescription("play the encrypted lottery")

	sub := cmd.SetSubCommand("play")
	sub.SetDescription("buy a ticket if needed, draw and reveal the points of a player")
	sub.SetFlags(
		folder,
		config,
		cli.StringFlag{
			Name:  "player",
			Usage: "name of the player, whose key is stored in the folder",
			Value: defaultPlayer,
		},
		cli.IntFlag{
			Name:  "first",
			Usage: "first number of the ticket, in [1, 9]",
			Value: 3,
		},
		cli.IntFlag{
			Name:  "second",
			Usage: "second number of the ticket, in [1, 9]",
			Value: 7,
		},
		cli.IntFlag{
			Name:  "draws",
			Usage: "number of draws",
			Value: 1,
		},
		cli.DurationFlag{
			Name:  "timeout",
			Usage: "maximum time to wait for a transaction",
			Value: defaultTimeout,
		},
		cli.StringFlag{
			Name:  "metrics",
			Usage: "address to serve the prometheus metrics, like 127.0.0.1:9100",
		},
		cli.DurationFlag{
			Name:  "linger",
			Usage: "time to keep serving the metrics after the game",
		},
	)
	sub.SetAction(playAction{out: m.out}.Execute)

	sub = cmd.SetSubCommand("config")
	sub.SetDescription("print the configuration of the node")
	sub.SetFlags(folder, config)
	sub.SetAction(configAction{out: m.out}.Execute)
}
