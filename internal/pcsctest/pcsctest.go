// Package pcsctest provides a scripted pcsc.Context and a simulated memory card for tests.
package pcsctest

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/gregLibert/nfc-reader/internal/syncutil"
	"github.com/gregLibert/nfc-reader/pkg/pcsc"
)

// DefaultReader is the reader name reported by NewContext when none is given.
const DefaultReader = "ACS ACR122U PICC Interface 00 00"

// ErrReleased is returned by every call on a released context.
var ErrReleased = errors.New("pcsctest: context released")

// StatusEvent is one scripted result of WaitForStatusChange.
type StatusEvent struct {
	State pcsc.StateFlag
	ATR   []byte
	Err   error
}

// Context is a scripted pcsc.Context. Status changes are served in order from a
// queue; once it is empty WaitForStatusChange honours the timeout or blocks until
// the caller's context is done.
type Context struct {
	mu syncutil.Mutex

	Readers []string
	ListErr error
	OpenErr error

	// Card is the card in the field. OpenTransaction fails with pcsc.ErrNoCard when nil.
	Card *Card

	events  []StatusEvent
	counter uint16

	calls        []string
	currentSeen  []pcsc.StateFlag
	released     bool
	transactions int
	closed       int
}

// NewContext returns a context listing the given readers.
func NewContext(readers ...string) *Context {
	return &Context{Readers: readers}
}

// Establisher returns a pcsc.Establisher handing out c.
func (c *Context) Establisher() pcsc.Establisher {
	return func() (pcsc.Context, error) {
		return c, nil
	}
}

// Push queues a raw status change.
func (c *Context) Push(ev StatusEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// Insert puts card in the field and queues the matching status change.
func (c *Context) Insert(card *Card) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Card = card
	c.counter++
	c.events = append(c.events, StatusEvent{
		State: (pcsc.StateChanged | pcsc.StatePresent).WithCount(c.counter),
		ATR:   card.ATR,
	})
}

// Remove takes the card out of the field and queues the matching status change.
func (c *Context) Remove() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Card = nil
	c.counter++
	c.events = append(c.events, StatusEvent{
		State: (pcsc.StateChanged | pcsc.StateEmpty).WithCount(c.counter),
	})
}

// Empty queues a status change reporting an empty field.
func (c *Context) Empty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	c.events = append(c.events, StatusEvent{
		State: (pcsc.StateChanged | pcsc.StateEmpty).WithCount(c.counter),
	})
}

// Repeat queues a copy of the last status change, same counter included.
func (c *Context) Repeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) > 0 {
		c.events = append(c.events, c.events[len(c.events)-1])
	}
}

// Fail queues a transport failure of the status change wait.
func (c *Context) Fail(err error) {
	c.Push(StatusEvent{Err: err})
}

func (c *Context) record(call string) error {
	c.calls = append(c.calls, call)
	if c.released && call != "Release" {
		return ErrReleased
	}
	return nil
}

func (c *Context) ListReaders() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("ListReaders"); err != nil {
		return nil, err
	}
	if c.ListErr != nil {
		return nil, c.ListErr
	}
	return append([]string(nil), c.Readers...), nil
}

func (c *Context) WaitForStatusChange(ctx context.Context, states []pcsc.ReaderState, timeout time.Duration) error {
	c.mu.Lock()
	if err := c.record("WaitForStatusChange"); err != nil {
		c.mu.Unlock()
		return err
	}
	for _, s := range states {
		c.currentSeen = append(c.currentSeen, s.CurrentState)
	}

	if len(c.events) == 0 {
		c.mu.Unlock()
		if timeout >= 0 {
			return pcsc.ErrTimeout
		}
		<-ctx.Done()
		return ctx.Err()
	}

	ev := c.events[0]
	c.events = c.events[1:]
	c.mu.Unlock()

	if ev.Err != nil {
		return ev.Err
	}
	for i := range states {
		states[i].EventState = ev.State
		states[i].ATR = bytes.Clone(ev.ATR)
	}
	return nil
}

func (c *Context) OpenTransaction(reader string) (pcsc.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("OpenTransaction"); err != nil {
		return nil, err
	}
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}
	if c.Card == nil {
		return nil, pcsc.ErrNoCard
	}
	c.transactions++
	return &transaction{ctx: c, card: c.Card}, nil
}

func (c *Context) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.record("Release")
	if c.released {
		return ErrReleased
	}
	c.released = true
	return nil
}

// Calls returns the names of the methods called so far, in order.
func (c *Context) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// CurrentStates returns the CurrentState of every reader state passed to
// WaitForStatusChange, in call order.
func (c *Context) CurrentStates() []pcsc.StateFlag {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]pcsc.StateFlag(nil), c.currentSeen...)
}

// Released reports whether Release was called.
func (c *Context) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// OpenTransactions returns how many transactions are open but not closed.
func (c *Context) OpenTransactions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transactions - c.closed
}

type transaction struct {
	ctx    *Context
	card   *Card
	closed bool
}

func (t *transaction) Transmit(cmd []byte) ([]byte, error) {
	if t.closed {
		return nil, errors.New("pcsctest: transaction closed")
	}
	return t.card.Transmit(cmd)
}

func (t *transaction) AnswerToReset() ([]byte, error) {
	if t.card.ATRErr != nil {
		return nil, t.card.ATRErr
	}
	return bytes.Clone(t.card.ATR), nil
}

func (t *transaction) Close() error {
	if t.closed {
		return errors.New("pcsctest: transaction already closed")
	}
	t.closed = true
	t.ctx.mu.Lock()
	t.ctx.closed++
	t.ctx.mu.Unlock()
	return nil
}
