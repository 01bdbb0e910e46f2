package iso7816

import (
	"fmt"
	"strings"
)

// TRANSACTION:
// A Transaction is the atomic unit of communication defined in ISO 7816-3: one
// Command APDU sent by the terminal, followed by one Response APDU sent back by
// the card.
//
// TRACE:
// A Trace is a chronological sequence of Transactions recorded by a Client. Once
// the secure channel is open the recorded frames are the wrapped ones, so a trace
// shows headers, lengths and status words but never plaintext.

// Transaction represents a completed Command-Response pair.
type Transaction struct {
	Command  *Command
	Response *Response
}

// IsOK checks if the transaction ended with 9000.
// It returns false if the response is missing.
func (t *Transaction) IsOK() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.IsOK()
}

// Trace is a sequence of transactions (Command-Response pairs).
type Trace []Transaction

// Last returns the final transaction of the trace.
// Returns nil if the trace is empty.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsOK checks if the FINAL transaction in the trace was successful.
func (t Trace) IsOK() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsOK()
}

// Describe renders one line per transaction.
func (t Trace) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== APDU TRACE ===")
	for i, tx := range t {
		fmt.Fprintf(&sb, "\n[%d] > %s", i+1, tx.Command)
		if tx.Response == nil {
			sb.WriteString("\n    < (no response)")
			continue
		}
		fmt.Fprintf(&sb, "\n    < %s", tx.Response)
	}
	return sb.String()
}
