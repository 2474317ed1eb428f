// Package pcsc is the narrow PC/SC surface the reader engine depends on: a resource
// manager context, reader status polling and exclusive card transactions.
//
// The production implementation wraps github.com/ebfe/scard (see Establish). Tests
// substitute a scripted Context.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Infinite makes WaitForStatusChange block until a change happens.
const Infinite time.Duration = -1

var (
	// ErrTimeout is returned by WaitForStatusChange when the timeout elapsed without change.
	ErrTimeout = errors.New("pcsc: timeout")
	// ErrNoCard is returned by OpenTransaction when the reader field is empty.
	ErrNoCard = errors.New("pcsc: no card present")
)

// StateFlag mirrors SCARD_STATE_*. The upper 16 bits of an event state carry the
// reader event counter.
type StateFlag uint32

const (
	StateUnaware     StateFlag = 0x0000
	StateIgnore      StateFlag = 0x0001
	StateChanged     StateFlag = 0x0002
	StateUnknown     StateFlag = 0x0004
	StateUnavailable StateFlag = 0x0008
	StateEmpty       StateFlag = 0x0010
	StatePresent     StateFlag = 0x0020
	StateAtrMatch    StateFlag = 0x0040
	StateExclusive   StateFlag = 0x0080
	StateInUse       StateFlag = 0x0100
	StateMute        StateFlag = 0x0200
	StateUnpowered   StateFlag = 0x0400

	stateMask StateFlag = 0xFFFF
)

var stateNames = []struct {
	flag StateFlag
	name string
}{
	{StateIgnore, "IGNORE"},
	{StateChanged, "CHANGED"},
	{StateUnknown, "UNKNOWN"},
	{StateUnavailable, "UNAVAILABLE"},
	{StateEmpty, "EMPTY"},
	{StatePresent, "PRESENT"},
	{StateAtrMatch, "ATRMATCH"},
	{StateExclusive, "EXCLUSIVE"},
	{StateInUse, "INUSE"},
	{StateMute, "MUTE"},
	{StateUnpowered, "UNPOWERED"},
}

// Has reports whether every bit of flag is set.
func (f StateFlag) Has(flag StateFlag) bool {
	return f&flag == flag
}

// Count returns the reader event counter stored in the upper 16 bits.
func (f StateFlag) Count() uint16 {
	return uint16(f >> 16)
}

// WithCount returns f with its event counter replaced by n.
func (f StateFlag) WithCount(n uint16) StateFlag {
	return f&stateMask | StateFlag(n)<<16
}

func (f StateFlag) String() string {
	var names []string
	for _, s := range stateNames {
		if f.Has(s.flag) {
			names = append(names, s.name)
		}
	}
	if len(names) == 0 {
		names = append(names, "UNAWARE")
	}
	if c := f.Count(); c > 0 {
		return fmt.Sprintf("%s #%d", strings.Join(names, "|"), c)
	}
	return strings.Join(names, "|")
}

// ReaderState is one entry of a status change request. CurrentState is the state the
// caller already knows; EventState and ATR are filled by the resource manager.
type ReaderState struct {
	Reader       string
	CurrentState StateFlag
	EventState   StateFlag
	ATR          []byte
}

// EventCount returns the reader event counter of the last reported state.
func (rs *ReaderState) EventCount() uint16 {
	return rs.EventState.Count()
}

// Sync makes the reported state the known state, so the next wait measures
// changes from there.
func (rs *ReaderState) Sync() {
	rs.CurrentState = rs.EventState &^ StateChanged
}

// Context is an established PC/SC resource manager context.
type Context interface {
	// ListReaders returns the connected readers. No reader is not an error.
	ListReaders() ([]string, error)

	// WaitForStatusChange blocks until the state of one of the readers differs from
	// its CurrentState, the timeout elapses (ErrTimeout) or ctx is done (ctx.Err()).
	WaitForStatusChange(ctx context.Context, states []ReaderState, timeout time.Duration) error

	// OpenTransaction connects to the card in the reader and begins an exclusive transaction.
	OpenTransaction(reader string) (Transaction, error)

	// Release frees the context. Further calls fail.
	Release() error
}

// Transaction is an exclusive card session. Close ends it and disconnects.
type Transaction interface {
	Transmit(cmd []byte) ([]byte, error)
	AnswerToReset() ([]byte, error)
	Close() error
}

// Establisher opens a Context.
type Establisher func() (Context, error)
