package contactless

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gregLibert/nfc-reader/pkg/iso7816"
	"github.com/gregLibert/nfc-reader/pkg/pcsc"
)

// Defaults of the one-shot reads.
const (
	DefaultNDEFStartBlock  uint16 = 4
	DefaultNDEFLength             = 144
	DefaultBlockWindowSize        = 16
)

// Observer receives telemetry from a Session. Calls happen on the goroutine running
// the operation and must not block.
type Observer interface {
	ObserveEdge(ev Event)
	ObserveOperation(op string, elapsed time.Duration, n int, err error)
	ObserveExchange(ex iso7816.Exchange)
}

type options struct {
	logger          *slog.Logger
	supportedReader string
	waitTimeout     time.Duration
	keys            KeyConfig
	ndefStart       uint16
	ndefLength      int
	blockWindow     int
	observers       []Observer
	onTrace         func(iso7816.Trace)
}

// Option configures a Session.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		logger:          slog.New(slog.DiscardHandler),
		supportedReader: DefaultSupportedReader,
		waitTimeout:     pcsc.Infinite,
		keys:            DefaultKeyConfig(),
		ndefStart:       DefaultNDEFStartBlock,
		ndefLength:      DefaultNDEFLength,
		blockWindow:     DefaultBlockWindowSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) validate() error {
	if o.supportedReader == "" {
		return fmt.Errorf("%w: empty supported reader name", ErrInvalidParameter)
	}
	if err := o.keys.Validate(); err != nil {
		return err
	}
	if o.ndefLength <= 0 || o.blockWindow <= 0 {
		return fmt.Errorf("%w: read lengths must be positive", ErrInvalidParameter)
	}
	return nil
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSupportedReader sets the model substring a reader name must contain.
func WithSupportedReader(substr string) Option {
	return func(o *options) { o.supportedReader = substr }
}

// WithWaitTimeout bounds each status change wait. pcsc.Infinite (the default) blocks
// until a change.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) { o.waitTimeout = d }
}

// WithKeys sets the authentication key configuration.
func WithKeys(k KeyConfig) Option {
	return func(o *options) { o.keys = k }
}

// WithNDEFRange sets the range read by ReadNDEFOnNextInsertion.
func WithNDEFRange(start uint16, length int) Option {
	return func(o *options) {
		o.ndefStart = start
		o.ndefLength = length
	}
}

// WithBlockWindow sets the number of bytes read by ReadBlock.
func WithBlockWindow(n int) Option {
	return func(o *options) { o.blockWindow = n }
}

// WithObserver adds a telemetry observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithTraceHook is called with the APDU trace of every card transaction, failed or not.
func WithTraceHook(fn func(iso7816.Trace)) Option {
	return func(o *options) { o.onTrace = fn }
}
