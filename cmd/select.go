package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// SelectCommand selects the applet and prints its application template.
func SelectCommand() *cli.Command {
	return &cli.Command{
		Name:   "select",
		Usage:  "Select the applet and show its public key and template",
		Action: runSelectCommand,
	}
}

func runSelectCommand(ctx context.Context, cmd *cli.Command) (err error) {
	c, err := connect(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	fmt.Fprintln(c.out, c.sel.Describe())
	return nil
}
