package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/gregLibert/secure-channel/pkg/config"
	"github.com/gregLibert/secure-channel/pkg/emulator"
	"github.com/gregLibert/secure-channel/pkg/iso7816"
	"github.com/gregLibert/secure-channel/pkg/logging"
	"github.com/gregLibert/secure-channel/pkg/pcsc"
	"github.com/gregLibert/secure-channel/pkg/securechannel"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// card is a connected engine with the applet selected.
type card struct {
	engine *securechannel.Engine
	sel    *iso7816.SelectResponse
	log    *zap.Logger
	out    io.Writer
	trace  bool
}

// loadConfig resolves file, environment and flags, in that order.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.LoadFromPath(cmd.String(flagConfig))
	if err != nil {
		return cfg, err
	}

	if cmd.IsSet(flagReader) {
		cfg.Reader = cmd.String(flagReader)
	}
	if cmd.IsSet(flagEmulator) {
		cfg.Emulator = cmd.Bool(flagEmulator)
	}
	if cmd.IsSet(flagLogLevel) {
		cfg.LogLevel = cmd.String(flagLogLevel)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// connect builds the reader named by the config, connects and selects the
// applet.
func connect(cmd *cli.Command) (*card, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	aid, _ := cfg.AIDBytes()
	pairingKey, _ := cfg.PairingKeyBytes()

	var reader securechannel.Reader
	if cfg.Emulator {
		reader, err = emulator.New(pairingKey,
			emulator.WithAID(aid),
			emulator.WithLogger(log.Named("emulator")),
		)
		if err != nil {
			return nil, fmt.Errorf("emulator: %w", err)
		}
	} else {
		reader = pcsc.New(cfg.Reader,
			pcsc.WithWait(cfg.CardWait),
			pcsc.WithLogger(log.Named("pcsc")),
		)
	}

	opts := []securechannel.Option{securechannel.WithLogger(log.Named("channel"))}
	if cmd.Bool(flagTrace) {
		opts = append(opts, securechannel.WithTrace())
	}

	engine, err := securechannel.New(reader, pairingKey, opts...)
	clear(pairingKey)
	if err != nil {
		return nil, err
	}

	c := &card{
		engine: engine,
		log:    log,
		out:    cmd.Root().Writer,
		trace:  cmd.Bool(flagTrace),
	}

	if err := engine.Connect(); err != nil {
		return nil, err
	}

	c.sel, err = engine.Select(aid)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("select: %w", err), c.close())
	}
	return c, nil
}

// open connects and runs the handshake.
func open(cmd *cli.Command) (*card, error) {
	c, err := connect(cmd)
	if err != nil {
		return nil, err
	}
	if err := c.engine.Open(); err != nil {
		return nil, errors.Join(fmt.Errorf("open secure channel: %w", err), c.close())
	}
	return c, nil
}

// close prints the trace when requested and releases the reader.
func (c *card) close() error {
	if c.trace {
		fmt.Fprintln(c.out, c.engine.Trace().Describe())
	}
	err := c.engine.Disconnect()
	_ = c.log.Sync()
	return err
}
