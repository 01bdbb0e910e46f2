// Package cmd holds the secure-channel command line.
package cmd

import (
	"github.com/urfave/cli/v3"
)

// Root flags, visible to every subcommand.
const (
	flagConfig   = "config"
	flagReader   = "reader"
	flagEmulator = "emulator"
	flagLogLevel = "log-level"
	flagTrace    = "trace"
)

// App returns the root command.
func App() *cli.Command {
	return &cli.Command{
		Name:  "secure-channel",
		Usage: "Talk to a secure element over an authenticated, encrypted channel",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagConfig,
				Usage: "Path to a YAML config file",
			},
			&cli.StringFlag{
				Name:  flagReader,
				Usage: "PC/SC reader name (substring match, first reader when empty)",
			},
			&cli.BoolFlag{
				Name:  flagEmulator,
				Usage: "Use the in-process card emulator instead of a reader",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "debug, info, warn or error",
			},
			&cli.BoolFlag{
				Name:  flagTrace,
				Usage: "Print every APDU exchanged",
			},
		},
		Commands: []*cli.Command{
			SelectCommand(),
			OpenCommand(),
			SignCommand(),
			EchoCommand(),
			SendCommand(),
		},
	}
}
