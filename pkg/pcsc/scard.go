package pcsc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ebfe/scard"
)

type scardContext struct {
	ctx *scard.Context
}

// Establish opens a PC/SC context on the system resource manager (pcscd, WinSCard).
func Establish() (Context, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish context: %w", err)
	}
	return &scardContext{ctx: ctx}, nil
}

func (c *scardContext) ListReaders() ([]string, error) {
	readers, err := c.ctx.ListReaders()
	if errors.Is(err, scard.ErrNoReadersAvailable) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list readers: %w", err)
	}
	return readers, nil
}

func (c *scardContext) WaitForStatusChange(ctx context.Context, states []ReaderState, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rs := make([]scard.ReaderState, len(states))
	for i, s := range states {
		rs[i] = scard.ReaderState{
			Reader:       s.Reader,
			CurrentState: scard.StateFlag(s.CurrentState),
		}
	}

	// SCardCancel is the only way to interrupt a pending SCardGetStatusChange.
	stop := context.AfterFunc(ctx, func() {
		_ = c.ctx.Cancel()
	})
	err := c.ctx.GetStatusChange(rs, timeout)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, scard.ErrCancelled) && ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, scard.ErrTimeout):
		return ErrTimeout
	default:
		return fmt.Errorf("get status change: %w", err)
	}

	for i := range states {
		states[i].EventState = StateFlag(rs[i].EventState)
		states[i].ATR = rs[i].Atr
	}
	return nil
}

func (c *scardContext) OpenTransaction(reader string) (Transaction, error) {
	card, err := c.ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if errors.Is(err, scard.ErrNoSmartcard) || errors.Is(err, scard.ErrRemovedCard) {
		return nil, fmt.Errorf("connect %q: %w", reader, ErrNoCard)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %q: %w", reader, err)
	}

	if err := card.BeginTransaction(); err != nil {
		_ = card.Disconnect(scard.LeaveCard)
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &scardTransaction{card: card}, nil
}

func (c *scardContext) Release() error {
	if err := c.ctx.Release(); err != nil {
		return fmt.Errorf("release context: %w", err)
	}
	return nil
}

type scardTransaction struct {
	card *scard.Card
}

// Transmit relies on scard sizing its receive buffer for the largest extended APDU.
func (t *scardTransaction) Transmit(cmd []byte) ([]byte, error) {
	return t.card.Transmit(cmd)
}

func (t *scardTransaction) AnswerToReset() ([]byte, error) {
	st, err := t.card.Status()
	if err != nil {
		return nil, fmt.Errorf("card status: %w", err)
	}
	return st.Atr, nil
}

func (t *scardTransaction) Close() error {
	return errors.Join(
		t.card.EndTransaction(scard.LeaveCard),
		t.card.Disconnect(scard.LeaveCard),
	)
}
