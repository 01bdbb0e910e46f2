package iso7816

import (
	"fmt"

	"go.uber.org/zap"
)

// Transmitter abstracts the physical card connection: one request, one response.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Client encodes commands, exchanges them with the card and decodes the replies.
// It performs no protocol recovery of its own (no GET RESPONSE, no Le retry):
// the secure channel forbids silent retransmission.
type Client struct {
	Card Transmitter

	log       *zap.Logger
	recording bool
	trace     Trace
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger used for frame level debug output.
func WithClientLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithTrace makes the client record every transaction.
func WithTrace() ClientOption {
	return func(c *Client) {
		c.recording = true
	}
}

// NewClient creates a new Client instance.
func NewClient(card Transmitter, opts ...ClientOption) *Client {
	c := &Client{Card: card, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send transmits a command and parses the response.
func (c *Client) Send(cmd *Command) (*Response, error) {
	rawCmd, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}

	c.log.Debug("apdu command",
		zap.String("header", fmt.Sprintf("%X", cmd.Header())),
		zap.Int("lc", len(cmd.Data)),
	)

	rawResp, err := c.Card.Transmit(rawCmd)
	if err != nil {
		return nil, fmt.Errorf("transmission error: %w", err)
	}

	resp, err := ParseResponse(rawResp)
	if err != nil {
		return nil, err
	}

	c.log.Debug("apdu response",
		zap.Int("length", len(resp.Data)),
		zap.Stringer("status", resp.Status),
	)

	if c.recording {
		c.trace = append(c.trace, Transaction{Command: cmd, Response: resp})
	}
	return resp, nil
}

// Trace returns the transactions recorded so far.
func (c *Client) Trace() Trace {
	return c.trace
}

// ResetTrace drops the recorded transactions.
func (c *Client) ResetTrace() {
	c.trace = nil
}
