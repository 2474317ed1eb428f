package contactless

import (
	"context"
	"errors"
	"fmt"

	"github.com/gregLibert/nfc-reader/pkg/iso7816"
	"github.com/gregLibert/nfc-reader/pkg/pcsc"
	"github.com/gregLibert/nfc-reader/pkg/tlv"
)

// Sentinel errors. Every error returned by this package matches exactly one of them
// with errors.Is, except context cancellation which is returned as is.
var (
	ErrNoReadersFound       = errors.New("no readers found")
	ErrUnsupportedReader    = errors.New("unsupported reader")
	ErrUnsupportedCardType  = errors.New("unsupported card type")
	ErrTransport            = errors.New("transport error")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrReadFailed           = errors.New("read failed")
	ErrInvalidReaderName    = errors.New("invalid reader name")
	ErrInvalidParameter     = errors.New("invalid parameter")
)

// UnsupportedReaderError names the reader that does not match the supported model.
type UnsupportedReaderError struct {
	Name string
}

func (e *UnsupportedReaderError) Error() string {
	return fmt.Sprintf("unsupported reader: %q", e.Name)
}

func (e *UnsupportedReaderError) Unwrap() error {
	return ErrUnsupportedReader
}

// UnsupportedCardError carries the ATR that could not be served. Profile is set when
// the ATR matched a known but unreadable technology.
type UnsupportedCardError struct {
	ATR     []byte
	Profile *Profile
}

func (e *UnsupportedCardError) Error() string {
	if e.Profile != nil {
		return fmt.Sprintf("unsupported card type: %s has no read support (ATR %s)", e.Profile.Name, tlv.Spaced(e.ATR))
	}
	return fmt.Sprintf("unsupported card type: unknown ATR %s", tlv.Spaced(e.ATR))
}

func (e *UnsupportedCardError) Unwrap() error {
	return ErrUnsupportedCardType
}

// TransportError wraps a failure reported by the PC/SC layer.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

const (
	opAuthenticate = "authenticate"
	opLoadKey      = "load key"
	opRead         = "read"
)

// CardError reports a command refused by the reader or the card, or answered with a
// malformed response. Err is ErrAuthenticationFailed or ErrReadFailed. Cause is set
// for malformed responses, Status otherwise. For a key load Block holds the key slot.
type CardError struct {
	Op     string
	Block  uint16
	Status iso7816.StatusWord
	Err    error
	Cause  error
}

func (e *CardError) Error() string {
	target := fmt.Sprintf("block %d", e.Block)
	if e.Op == opLoadKey {
		target = fmt.Sprintf("slot %d", e.Block)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%v: %s %s: %v", e.Err, e.Op, target, e.Cause)
	}
	return fmt.Sprintf("%v: %s %s: %s", e.Err, e.Op, target, e.Status.Verbose())
}

func (e *CardError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// exchangeError maps the outcome of one APDU exchange to the taxonomy.
// failure is the sentinel used for refusals and malformed answers.
func exchangeError(op string, block uint16, resp *iso7816.ResponseAPDU, err error, failure error) error {
	var te *iso7816.TransmitError
	switch {
	case errors.As(err, &te):
		return &TransportError{Op: op, Err: te.Err}
	case err != nil:
		return &CardError{Op: op, Block: block, Err: failure, Cause: err}
	case !resp.Status.IsSuccess():
		return &CardError{Op: op, Block: block, Status: resp.Status, Err: failure}
	}
	return nil
}

// Kind is the closed set of failure outcomes, used as a log and metric label.
type Kind int

const (
	KindNone Kind = iota
	KindNoReadersFound
	KindUnsupportedReader
	KindUnsupportedCardType
	KindTransport
	KindAuthenticationFailed
	KindReadFailed
	KindInvalidReaderName
	KindInvalidParameter
	KindTimeout
	KindCanceled
	KindOther
)

var kindNames = map[Kind]string{
	KindNone:                 "none",
	KindNoReadersFound:       "no_readers_found",
	KindUnsupportedReader:    "unsupported_reader",
	KindUnsupportedCardType:  "unsupported_card_type",
	KindTransport:            "transport",
	KindAuthenticationFailed: "authentication_failed",
	KindReadFailed:           "read_failed",
	KindInvalidReaderName:    "invalid_reader_name",
	KindInvalidParameter:     "invalid_parameter",
	KindTimeout:              "timeout",
	KindCanceled:             "canceled",
	KindOther:                "other",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// KindOf classifies err. A bounded wait that elapsed is KindTimeout even though it
// is carried by a TransportError.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, pcsc.ErrTimeout):
		return KindTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrNoReadersFound):
		return KindNoReadersFound
	case errors.Is(err, ErrUnsupportedReader):
		return KindUnsupportedReader
	case errors.Is(err, ErrUnsupportedCardType):
		return KindUnsupportedCardType
	case errors.Is(err, ErrAuthenticationFailed):
		return KindAuthenticationFailed
	case errors.Is(err, ErrReadFailed):
		return KindReadFailed
	case errors.Is(err, ErrInvalidReaderName):
		return KindInvalidReaderName
	case errors.Is(err, ErrInvalidParameter):
		return KindInvalidParameter
	case errors.Is(err, ErrTransport):
		return KindTransport
	default:
		return KindOther
	}
}
