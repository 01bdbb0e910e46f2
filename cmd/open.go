package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// OpenCommand runs the handshake and reports the session state.
func OpenCommand() *cli.Command {
	return &cli.Command{
		Name:   "open",
		Usage:  "Open and mutually authenticate a secure channel",
		Action: runOpenCommand,
	}
}

func runOpenCommand(ctx context.Context, cmd *cli.Command) (err error) {
	c, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	fmt.Fprintf(c.out, ">> Secure channel: %s\n", c.engine.State())
	return nil
}
