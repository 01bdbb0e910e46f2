package securechannel

import (
	"io"

	"go.uber.org/zap"
)

type options struct {
	cardKey []byte
	keys    KeySource
	rand    io.Reader
	log     *zap.Logger
	trace   bool
}

// Option configures an Engine.
type Option func(*options)

// WithCardPublicKey sets the card's static key (uncompressed P-256) when it is
// known without a SELECT.
func WithCardPublicKey(key []byte) Option {
	return func(o *options) {
		o.cardKey = append([]byte(nil), key...)
	}
}

// WithKeySource replaces the ephemeral key generator.
func WithKeySource(ks KeySource) Option {
	return func(o *options) {
		o.keys = ks
	}
}

// WithRand sets the source of the mutual authentication challenge.
func WithRand(r io.Reader) Option {
	return func(o *options) {
		o.rand = r
	}
}

// WithLogger sets the logger. Key material is never logged.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithTrace records every frame exchanged, wrapped frames as they go on the wire.
func WithTrace() Option {
	return func(o *options) {
		o.trace = true
	}
}
