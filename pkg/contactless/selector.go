package contactless

import (
	"strings"

	"github.com/gregLibert/nfc-reader/pkg/pcsc"
)

// DefaultSupportedReader is the model substring accepted by SelectReader.
const DefaultSupportedReader = "ACR122"

// SelectReader opens a PC/SC context and binds a Session to the first listed reader.
//
// No reader is ErrNoReadersFound. A first reader whose name lacks the supported model
// substring is an *UnsupportedReaderError, and a name the transport cannot carry
// (embedded NUL) is ErrInvalidReaderName. The context is released on every failure.
func SelectReader(establish pcsc.Establisher, opts ...Option) (*Session, error) {
	o := newOptions(opts)
	if err := o.validate(); err != nil {
		return nil, err
	}

	c, err := establish()
	if err != nil {
		return nil, &TransportError{Op: "establish context", Err: err}
	}

	name, err := pickReader(c, o.supportedReader)
	if err != nil {
		if rerr := c.Release(); rerr != nil {
			o.logger.Warn("release context", "error", rerr)
		}
		return nil, err
	}

	o.logger.Info("reader selected", "reader", name)
	return newSession(c, name, o), nil
}

func pickReader(c pcsc.Context, supported string) (string, error) {
	readers, err := c.ListReaders()
	if err != nil {
		return "", &TransportError{Op: "list readers", Err: err}
	}
	if len(readers) == 0 {
		return "", ErrNoReadersFound
	}

	name := readers[0]
	if strings.ContainsRune(name, 0) {
		return "", ErrInvalidReaderName
	}
	if !strings.Contains(name, supported) {
		return "", &UnsupportedReaderError{Name: name}
	}
	return name, nil
}
