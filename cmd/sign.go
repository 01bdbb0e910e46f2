package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/gregLibert/secure-channel/pkg/securechannel"
	"github.com/urfave/cli/v3"
)

var ErrSignatureMismatch = errors.New("signature does not verify against the returned public key")

// SignCommand signs a hash, or the SHA-256 of a message, with a card key slot.
func SignCommand() *cli.Command {
	return &cli.Command{
		Name:  "sign",
		Usage: "Sign a 32-byte hash inside the secure channel",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "slot",
				Usage: "Key slot (0-255)",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "hash",
				Usage: "Hex-encoded 32-byte hash",
			},
			&cli.StringFlag{
				Name:  "message",
				Usage: "Message to hash with SHA-256 before signing",
			},
		},
		Action: runSignCommand,
	}
}

func runSignCommand(ctx context.Context, cmd *cli.Command) (err error) {
	slot := cmd.Int("slot")
	if slot < 0 || slot > 0xFF {
		return fmt.Errorf("slot must be between 0 and 255, got %d", slot)
	}

	hash, err := signInput(cmd.String("hash"), cmd.String("message"))
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

	resp, err := c.engine.Sign(byte(slot), hash)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	fmt.Fprintln(c.out, resp.Describe())

	ok, err := resp.Verify(hash)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if !ok {
		return ErrSignatureMismatch
	}
	fmt.Fprintln(c.out, "    + Verified:  true")
	return nil
}

func signInput(hashHex, message string) ([]byte, error) {
	switch {
	case hashHex != "" && message != "":
		return nil, fmt.Errorf("only one of --hash or --message should be provided")
	case message != "":
		sum := sha256.Sum256([]byte(message))
		return sum[:], nil
	case hashHex == "":
		return nil, fmt.Errorf("either --hash or --message must be provided")
	}

	hash, err := hex.DecodeString(hashHex)
	if err != nil {
		return nil, fmt.Errorf("hash: %w", err)
	}
	if len(hash) != securechannel.HashSize {
		return nil, fmt.Errorf("hash must be %d bytes, got %d", securechannel.HashSize, len(hash))
	}
	return hash, nil
}
