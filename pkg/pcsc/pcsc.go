// Package pcsc connects the secure channel to a physical card through the
// PC/SC service (pcscd on Linux, WinSCard on Windows).
package pcsc

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ebfe/scard"
	"go.uber.org/zap"
)

var (
	ErrNoReader     = errors.New("no smart card reader found")
	ErrNotConnected = errors.New("pcsc: card not connected")
)

// Reader is a securechannel.Reader backed by one PC/SC reader slot.
type Reader struct {
	name string
	wait time.Duration
	log  *zap.Logger

	ctx    *scard.Context
	card   *scard.Card
	reader string
}

// Option configures a Reader.
type Option func(*Reader)

// WithWait makes Connect wait up to d for a card to be presented. Zero means
// the card must already be there.
func WithWait(d time.Duration) Option {
	return func(r *Reader) { r.wait = d }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Reader) { r.log = log }
}

// New returns a Reader using the first reader whose name contains name, or
// the first reader at all when name is empty.
func New(name string, opts ...Option) *Reader {
	r := &Reader{name: name, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the reader in use, empty before Connect.
func (r *Reader) Name() string {
	return r.reader
}

// Connect establishes the PC/SC context and connects to the card.
func (r *Reader) Connect() error {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return fmt.Errorf("establishing context: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil {
		r.release(ctx)
		return fmt.Errorf("listing readers: %w", err)
	}

	reader, err := pickReader(readers, r.name)
	if err != nil {
		r.release(ctx)
		return err
	}
	r.log.Info("using reader", zap.String("reader", reader))

	if r.wait > 0 {
		if err := waitUntilCardPresent(ctx, reader, r.wait); err != nil {
			r.release(ctx)
			return err
		}
	}

	// Force T=0 or T=1 to avoid "Parameter Incorrect" errors (Error 57)
	card, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		r.release(ctx)
		return fmt.Errorf("connecting to card: %w", err)
	}

	r.ctx, r.card, r.reader = ctx, card, reader
	return nil
}

// Transmit sends one APDU and returns the raw answer.
func (r *Reader) Transmit(cmd []byte) ([]byte, error) {
	if r.card == nil {
		return nil, ErrNotConnected
	}
	return r.card.Transmit(cmd)
}

// Disconnect leaves the card powered and releases the context.
func (r *Reader) Disconnect() error {
	var errs []error
	if r.card != nil {
		if err := r.card.Disconnect(scard.LeaveCard); err != nil {
			errs = append(errs, fmt.Errorf("disconnecting card: %w", err))
		}
		r.card = nil
	}
	if r.ctx != nil {
		if err := r.ctx.Release(); err != nil {
			errs = append(errs, fmt.Errorf("releasing context: %w", err))
		}
		r.ctx = nil
	}
	return errors.Join(errs...)
}

func (r *Reader) release(ctx *scard.Context) {
	if err := ctx.Release(); err != nil {
		r.log.Warn("failed to release context", zap.Error(err))
	}
}

func pickReader(readers []string, name string) (string, error) {
	if len(readers) == 0 {
		return "", ErrNoReader
	}
	if name == "" {
		return readers[0], nil
	}

	want := strings.ToLower(name)
	for _, reader := range readers {
		if strings.Contains(strings.ToLower(reader), want) {
			return reader, nil
		}
	}
	return "", fmt.Errorf("%w matching %q (have %s)", ErrNoReader, name, strings.Join(readers, ", "))
}

func waitUntilCardPresent(ctx *scard.Context, reader string, timeout time.Duration) error {
	rs := []scard.ReaderState{{Reader: reader, CurrentState: scard.StateUnaware}}
	deadline := time.Now().Add(timeout)

	for {
		if rs[0].EventState&scard.StatePresent != 0 {
			return nil
		}
		rs[0].CurrentState = rs[0].EventState

		left := time.Until(deadline)
		if left <= 0 {
			return fmt.Errorf("no card presented on %q within %s", reader, timeout)
		}
		if err := ctx.GetStatusChange(rs, left); err != nil {
			if errors.Is(err, scard.ErrTimeout) {
				return fmt.Errorf("no card presented on %q within %s", reader, timeout)
			}
			return fmt.Errorf("waiting for card: %w", err)
		}
	}
}
