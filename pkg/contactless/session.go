package contactless

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gregLibert/nfc-reader/internal/syncutil"
	"github.com/gregLibert/nfc-reader/pkg/atr"
	"github.com/gregLibert/nfc-reader/pkg/iso7816"
	"github.com/gregLibert/nfc-reader/pkg/pcsc"
)

// Operation names used in logs and metrics.
const (
	OpListen    = "listen"
	OpReadNDEF  = "read_ndef"
	OpReadBlock = "read_block"
	OpReadRange = "read_range"
	OpDump      = "dump"
)

// Session is one selected reader and its PC/SC context. Operations on a Session are
// serialized: each holds the reader until it returns.
type Session struct {
	ctx    pcsc.Context
	reader string
	opts   options
	logger *slog.Logger

	mu syncutil.Mutex
}

func newSession(c pcsc.Context, reader string, o options) *Session {
	return &Session{
		ctx:    c,
		reader: reader,
		opts:   o,
		logger: o.logger.With("reader", reader),
	}
}

// ReaderName returns the name of the selected reader.
func (s *Session) ReaderName() string {
	return s.reader
}

// Close releases the PC/SC context. A pending wait is interrupted with a transport error.
func (s *Session) Close() error {
	if err := s.ctx.Release(); err != nil {
		return &TransportError{Op: "release context", Err: err}
	}
	return nil
}

// Handler is called for every edge seen by Listen. A returned error stops Listen.
type Handler func(ctx context.Context, ev Event) error

// Listen reports every card edge to h until ctx is done, h fails, or the transport
// fails. A transport failure ends the session's listening; bounded waits that elapse
// are not failures.
func (s *Session) Listen(ctx context.Context, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := NewMonitor(s.ctx, s.reader, s.opts.waitTimeout, s.logger)
	s.logger.Info("listening for cards")

	for {
		ev, err := m.Next(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			s.observeOperation(OpListen, 0, 0, ctx.Err())
			return ctx.Err()
		case errors.Is(err, pcsc.ErrTimeout):
			continue
		default:
			s.observeOperation(OpListen, 0, 0, err)
			return err
		}

		s.observeEdge(ev)
		if err := h(ctx, ev); err != nil {
			return err
		}
	}
}

// Watch runs Listen on its own goroutine. Events are delivered on the first channel;
// the second receives the error that ended Listen. Both are closed afterwards.
func (s *Session) Watch(ctx context.Context) (<-chan Event, <-chan error) {
	events := make(chan Event)
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errc)
		errc <- s.Listen(ctx, func(ctx context.Context, ev Event) error {
			select {
			case events <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	return events, errc
}

// ReadNDEFOnNextInsertion waits for a card and reads the configured NDEF range
// (block 4, 144 bytes by default).
func (s *Session) ReadNDEFOnNextInsertion(ctx context.Context) ([]byte, error) {
	start, length := s.opts.ndefStart, s.opts.ndefLength
	return s.readOnNextInsertion(ctx, OpReadNDEF, func(r *BlockReader) ([]byte, error) {
		return r.Read(start, length)
	})
}

// ReadBlock waits for a card and reads the configured window (16 bytes by default)
// starting at block.
func (s *Session) ReadBlock(ctx context.Context, block uint16) ([]byte, error) {
	window := s.opts.blockWindow
	return s.readOnNextInsertion(ctx, OpReadBlock, func(r *BlockReader) ([]byte, error) {
		return r.Read(block, window)
	})
}

// ReadRange waits for a card and reads length bytes starting at block start.
func (s *Session) ReadRange(ctx context.Context, start uint16, length int) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: read length %d", ErrInvalidParameter, length)
	}
	return s.readOnNextInsertion(ctx, OpReadRange, func(r *BlockReader) ([]byte, error) {
		return r.Read(start, length)
	})
}

// ReadDataBlocksOnNextInsertion waits for a card and reads every data block of the
// layout, one authenticated read per block, concatenated in block order.
func (s *Session) ReadDataBlocksOnNextInsertion(ctx context.Context, layout SectorLayout) ([]byte, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return s.readOnNextInsertion(ctx, OpDump, func(r *BlockReader) ([]byte, error) {
		return r.ReadBlocks(layout.DataBlocks(), layout.BlockSize)
	})
}

func (s *Session) readOnNextInsertion(ctx context.Context, op string, read func(*BlockReader) ([]byte, error)) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	m := NewMonitor(s.ctx, s.reader, s.opts.waitTimeout, s.logger)

	for {
		ev, err := m.Next(ctx)
		if err != nil {
			s.observeOperation(op, time.Since(started), 0, err)
			return nil, err
		}
		s.observeEdge(ev)
		if ev.Edge != EdgeInserted {
			continue
		}

		data, err := s.withCard(ev, read)
		s.observeOperation(op, time.Since(started), len(data), err)
		if err != nil {
			s.logger.Warn("card read failed", "op", op, "card", ev.ID, "kind", KindOf(err), "error", err)
			return nil, err
		}
		s.logger.Info("card read", "op", op, "card", ev.ID, "bytes", len(data))
		return data, nil
	}
}

// withCard runs read inside a card transaction. The transaction is closed on every path.
func (s *Session) withCard(ev Event, read func(*BlockReader) ([]byte, error)) ([]byte, error) {
	tx, err := s.ctx.OpenTransaction(s.reader)
	if err != nil {
		return nil, &TransportError{Op: "open transaction", Err: err}
	}
	defer func() {
		if err := tx.Close(); err != nil {
			s.logger.Warn("close transaction", "card", ev.ID, "error", err)
		}
	}()

	raw, err := tx.AnswerToReset()
	if err != nil {
		return nil, &TransportError{Op: "answer to reset", Err: err}
	}
	s.logATR(ev, raw)

	profile, err := Classify(raw)
	if err != nil {
		return nil, err
	}

	client := iso7816.NewClient(tx)
	client.Observe = s.observeExchange
	if s.opts.onTrace != nil {
		defer func() { s.opts.onTrace(client.Trace()) }()
	}

	auth := NewAuthenticator(client, profile.Class, s.opts.keys)
	reader, err := NewBlockReader(client, profile, auth)
	if err != nil {
		return nil, err
	}
	return read(reader)
}

func (s *Session) logATR(ev Event, raw []byte) {
	if !s.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	a, err := atr.Parse(raw)
	if err != nil {
		s.logger.Debug("answer to reset", "card", ev.ID, "atr", raw, "decode_error", err)
		return
	}
	attrs := []any{"card", ev.ID, "atr", raw, "protocols", a.Protocols}
	if a.Storage != nil {
		attrs = append(attrs, "standard", a.Storage.StandardName(), "name", a.Storage.Name())
	}
	s.logger.Debug("answer to reset", attrs...)
}

func (s *Session) observeEdge(ev Event) {
	s.logger.Info("card "+ev.Edge.String(), "card", ev.ID, "count", ev.Count)
	for _, o := range s.opts.observers {
		o.ObserveEdge(ev)
	}
}

func (s *Session) observeOperation(op string, elapsed time.Duration, n int, err error) {
	for _, o := range s.opts.observers {
		o.ObserveOperation(op, elapsed, n, err)
	}
}

func (s *Session) observeExchange(ex iso7816.Exchange) {
	s.logger.Debug("apdu", "ins", ex.Command.Instruction.Raw, "command", ex.Raw, "response", ex.Response, "elapsed", ex.Elapsed, "error", ex.Err)
	for _, o := range s.opts.observers {
		o.ObserveExchange(ex)
	}
}
