package contactless

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gregLibert/nfc-reader/pkg/pcsc"
)

// Presence is the card presence of a reader as last reported.
type Presence int

const (
	PresenceUnknown Presence = iota
	PresenceEmpty
	PresencePresent
)

func (p Presence) String() string {
	switch p {
	case PresenceEmpty:
		return "empty"
	case PresencePresent:
		return "present"
	default:
		return "unknown"
	}
}

// Edge is a presence transition.
type Edge int

const (
	EdgeInserted Edge = iota + 1
	EdgeRemoved
)

func (e Edge) String() string {
	switch e {
	case EdgeInserted:
		return "inserted"
	case EdgeRemoved:
		return "removed"
	default:
		return fmt.Sprintf("Edge(%d)", int(e))
	}
}

// Event is a card edge. ID identifies one presentation of a card: the removal
// carries the ID of the matching insertion.
type Event struct {
	ID     ulid.ULID
	Edge   Edge
	Reader string
	ATR    []byte
	Count  uint16
	Time   time.Time
}

// Monitor turns reader status changes into edges. It is not safe for concurrent use.
//
// Each wakeup of the wait primitive is handled as follows:
//  1. an event counter equal to the last one handled is a spurious wakeup;
//  2. without the CHANGED flag the counter is recorded and nothing is reported;
//  3. CHANGED with PRESENT reports an insertion, unless a card was already present;
//  4. CHANGED without PRESENT reports a removal, if a card was present;
//  5. the known state is then synchronized to the reported one.
//
// Readers that do not maintain an event counter report 0: then step 1 is skipped and
// the presence comparison alone keeps edges from repeating.
type Monitor struct {
	pcsc     pcsc.Context
	state    []pcsc.ReaderState
	presence Presence
	counted  bool
	last     uint16
	current  ulid.ULID

	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
	entropy io.Reader
}

// NewMonitor watches reader. The first wait reports the reader's current state, so a
// card already in the field is seen as inserted.
func NewMonitor(c pcsc.Context, reader string, timeout time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Monitor{
		pcsc:    c,
		state:   []pcsc.ReaderState{{Reader: reader, CurrentState: pcsc.StateUnaware}},
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Presence returns the presence last reported.
func (m *Monitor) Presence() Presence {
	return m.presence
}

// Next blocks until the next edge. A failed wait is returned as a *TransportError
// (pcsc.ErrTimeout when a finite timeout elapsed); a done ctx returns ctx.Err().
func (m *Monitor) Next(ctx context.Context) (Event, error) {
	st := &m.state[0]

	for {
		if err := m.pcsc.WaitForStatusChange(ctx, m.state, m.timeout); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return Event{}, err
			}
			return Event{}, &TransportError{Op: "wait for status change", Err: err}
		}

		flags := st.EventState
		count := st.EventCount()

		if m.counted && count != 0 && count == m.last {
			m.logger.Debug("spurious status change", "reader", st.Reader, "state", flags)
			st.Sync()
			continue
		}
		m.counted = true
		m.last = count

		if !flags.Has(pcsc.StateChanged) {
			st.Sync()
			continue
		}

		if flags.Has(pcsc.StateUnknown) || flags.Has(pcsc.StateUnavailable) {
			st.Sync()
			return Event{}, &TransportError{Op: "wait for status change", Err: fmt.Errorf("reader %q is %s", st.Reader, flags)}
		}

		next := PresenceEmpty
		if flags.Has(pcsc.StatePresent) {
			next = PresencePresent
		}

		prev := m.presence
		m.presence = next
		st.Sync()

		m.logger.Debug("status change", "reader", st.Reader, "state", flags, "from", prev, "to", next)

		switch {
		case next == PresencePresent && prev != PresencePresent:
			m.current = m.newID()
			return m.event(EdgeInserted, bytes.Clone(st.ATR), count), nil
		case next == PresenceEmpty && prev == PresencePresent:
			ev := m.event(EdgeRemoved, nil, count)
			m.current = ulid.ULID{}
			return ev, nil
		}
	}
}

func (m *Monitor) event(edge Edge, atr []byte, count uint16) Event {
	return Event{
		ID:     m.current,
		Edge:   edge,
		Reader: m.state[0].Reader,
		ATR:    atr,
		Count:  count,
		Time:   m.now(),
	}
}

func (m *Monitor) newID() ulid.ULID {
	id, err := ulid.New(ulid.Timestamp(m.now()), m.entropy)
	if err != nil {
		return ulid.Make()
	}
	return id
}
