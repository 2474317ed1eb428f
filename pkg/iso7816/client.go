package iso7816

import (
	"fmt"
	"time"
)

// CLIENT LOGIC:
// The Client is a thin driver over the physical connection. Reader pseudo-APDUs are
// single exchanges: the reader answers with the payload and 9000, or with an error
// status word. There is no GET RESPONSE chaining and no automatic Le correction;
// every status word is returned to the caller as is.
//
// Every exchange is appended to the client Trace so a whole logical read (several
// authenticate and read commands) can be reported afterwards.

// Transmitter abstracts the physical card connection.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// TransmitError reports a failure of the transport itself while sending a command.
// No response was received, so there is no status word to inspect.
type TransmitError struct {
	Ins InsCode
	Err error
}

func (e *TransmitError) Error() string {
	return fmt.Sprintf("transmit %s: %v", e.Ins, e.Err)
}

func (e *TransmitError) Unwrap() error {
	return e.Err
}

// Exchange describes one raw round trip, successful or not.
type Exchange struct {
	Command  *CommandAPDU
	Raw      []byte
	Response []byte
	Elapsed  time.Duration
	Err      error
}

// Client manages the communication with the reader and the card in its field.
type Client struct {
	Card Transmitter

	// Observe, when set, is called after every exchange.
	Observe func(Exchange)

	trace Trace
}

// NewClient creates a new Client instance.
func NewClient(card Transmitter) *Client {
	return &Client{Card: card}
}

// Trace returns the transactions completed so far.
func (c *Client) Trace() Trace {
	return c.trace
}

// Reset clears the recorded trace.
func (c *Client) Reset() {
	c.trace = nil
}

// Send encodes and transmits a command and parses the response.
//
// A transport failure yields a *TransmitError. A reply shorter than the status word
// yields ErrMalformedResponse. Otherwise the response is returned whatever its
// status word, and recorded in the trace.
func (c *Client) Send(cmd *CommandAPDU) (*ResponseAPDU, error) {
	rawCmd, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}

	start := time.Now()
	rawResp, err := c.Card.Transmit(rawCmd)
	ex := Exchange{Command: cmd, Raw: rawCmd, Response: rawResp, Elapsed: time.Since(start)}

	if err != nil {
		ex.Err = &TransmitError{Ins: cmd.Instruction.Raw, Err: err}
		c.observe(ex)
		return nil, ex.Err
	}

	resp, err := ParseResponseAPDU(rawResp)
	if err != nil {
		ex.Err = fmt.Errorf("%s: %w", cmd.Instruction.Raw, err)
		c.observe(ex)
		return nil, ex.Err
	}

	c.trace = append(c.trace, Transaction{Command: cmd, Response: resp})
	c.observe(ex)

	return resp, nil
}

func (c *Client) observe(ex Exchange) {
	if c.Observe != nil {
		c.Observe(ex)
	}
}
