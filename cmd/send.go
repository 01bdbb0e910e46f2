package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/gregLibert/secure-channel/pkg/iso7816"
	"github.com/gregLibert/secure-channel/pkg/securechannel"
	"github.com/urfave/cli/v3"
)

// EchoCommand sends data to the ECHO instruction and prints the reply.
func EchoCommand() *cli.Command {
	return &cli.Command{
		Name:  "echo",
		Usage: "Round-trip data through the secure channel",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "data",
				Usage: "Hex-encoded payload",
			},
		},
		Action: runEchoCommand,
	}
}

func runEchoCommand(ctx context.Context, cmd *cli.Command) (err error) {
	data, err := decodeHex("data", cmd.String("data"))
	if err != nil {
		return err
	}

	c, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	reply, err := c.engine.Echo(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%X\n", reply)
	return nil
}

// SendCommand sends an arbitrary applet command inside the channel.
func SendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Send a raw command (class A0) inside the secure channel",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "ins",
				Usage:    "Instruction byte, hex",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "p1",
				Usage: "P1, hex",
				Value: "00",
			},
			&cli.StringFlag{
				Name:  "p2",
				Usage: "P2, hex",
				Value: "00",
			},
			&cli.StringFlag{
				Name:  "data",
				Usage: "Hex-encoded payload",
			},
		},
		Action: runSendCommand,
	}
}

func runSendCommand(ctx context.Context, cmd *cli.Command) (err error) {
	var header [3]byte
	for i, name := range []string{"ins", "p1", "p2"} {
		v, err := strconv.ParseUint(strings.TrimPrefix(cmd.String(name), "0x"), 16, 8)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		header[i] = byte(v)
	}

	data, err := decodeHex("data", cmd.String("data"))
	if err != nil {
		return err
	}

	c, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	resp, err := c.engine.Transmit(iso7816.NewCommand(securechannel.CLA, header[0], header[1], header[2], data))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Data:   %X\nStatus: %s\n", resp.Data, resp.Status.Verbose())
	return nil
}

func decodeHex(name, s string) ([]byte, error) {
	data, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return data, nil
}
