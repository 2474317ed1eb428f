package contactless

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/nfc-reader/internal/pcsctest"
	"github.com/gregLibert/nfc-reader/pkg/iso7816"
)

type recorder struct {
	mu        sync.Mutex
	edges     []Edge
	ops       []string
	kinds     []Kind
	bytes     []int
	exchanges int
}

func (r *recorder) ObserveEdge(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edges = append(r.edges, ev.Edge)
}

func (r *recorder) ObserveOperation(op string, _ time.Duration, n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
	r.kinds = append(r.kinds, KindOf(err))
	r.bytes = append(r.bytes, n)
}

func (r *recorder) ObserveExchange(iso7816.Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges++
}

func newTestSession(t *testing.T, c *pcsctest.Context, opts ...Option) *Session {
	t.Helper()
	s, err := SelectReader(c.Establisher(), opts...)
	if err != nil {
		t.Fatalf("SelectReader() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSession_ReadNDEFOnNextInsertion(t *testing.T) {
	memory := pcsctest.Pattern(256)
	card := pcsctest.NewMemoryCard(classicATR, 4, memory)
	c := pcsctest.NewContext(pcsctest.DefaultReader)
	c.Insert(card)

	rec := &recorder{}
	var traces []iso7816.Trace
	var logs bytes.Buffer
	s := newTestSession(t, c,
		WithObserver(rec),
		WithTraceHook(func(tr iso7816.Trace) { traces = append(traces, tr) }),
		WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
	)

	data, err := s.ReadNDEFOnNextInsertion(context.Background())
	if err != nil {
		t.Fatalf("ReadNDEFOnNextInsertion() error = %v", err)
	}
	if diff := cmp.Diff(memory[16:160], data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	if n := len(card.Sent()); n != 18 {
		t.Errorf("sent %d commands, want 9 authenticate and 9 read", n)
	}
	if c.OpenTransactions() != 0 {
		t.Error("transaction left open")
	}

	if diff := cmp.Diff([]Edge{EdgeInserted}, rec.edges); diff != "" {
		t.Errorf("observed edges mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{OpReadNDEF}, rec.ops); diff != "" {
		t.Errorf("observed operations mismatch (-want +got):\n%s", diff)
	}
	if rec.bytes[0] != 144 || rec.kinds[0] != KindNone || rec.exchanges != 18 {
		t.Errorf("observer = %+v", rec)
	}

	if len(traces) != 1 {
		t.Fatalf("trace hook called %d times", len(traces))
	}
	res, err := iso7816.NewReadBinaryResult(traces[0])
	if err != nil {
		t.Fatalf("NewReadBinaryResult() error = %v", err)
	}
	if !bytes.Equal(res.Data(), data) {
		t.Error("trace data differs from the returned data")
	}

	for _, msg := range []string{"card inserted", "answer to reset", "MIFARE Classic 1K", "card read"} {
		if !strings.Contains(logs.String(), msg) {
			t.Errorf("log output lacks %q", msg)
		}
	}
}

func TestSession_ReadsNextPresentation(t *testing.T) {
	first := pcsctest.NewMemoryCard(classicATR, 4, pcsctest.Pattern(256))
	second := pcsctest.NewMemoryCard(classicATR, 4, bytes.Repeat([]byte{0xAB}, 256))
	c := pcsctest.NewContext(pcsctest.DefaultReader)
	c.Insert(first)
	s := newTestSession(t, c)

	if _, err := s.ReadNDEFOnNextInsertion(context.Background()); err != nil {
		t.Fatalf("first read error = %v", err)
	}

	c.Remove()
	c.Insert(second)
	data, err := s.ReadNDEFOnNextInsertion(context.Background())
	if err != nil {
		t.Fatalf("second read error = %v", err)
	}
	if !bytes.Equal(data, bytes.Repeat([]byte{0xAB}, 144)) {
		t.Errorf("second read returned % X", data[:8])
	}
	if len(second.Sent()) != 18 {
		t.Errorf("second card received %d commands", len(second.Sent()))
	}
}

func TestSession_ReadFailures(t *testing.T) {
	lost := errors.New("card removed")

	tests := []struct {
		name  string
		setup func(c *pcsctest.Context, card *pcsctest.Card)
		want  Kind
		sent  int
	}{
		{
			name:  "authentication refused",
			setup: func(_ *pcsctest.Context, card *pcsctest.Card) { card.AuthStatus[8] = iso7816.SW_WARN_NV_CHANGED_NO_INFO },
			want:  KindAuthenticationFailed,
			sent:  3,
		},
		{
			name:  "read refused",
			setup: func(_ *pcsctest.Context, card *pcsctest.Card) { card.ReadStatus[4] = iso7816.SW_ERR_WRONG_LENGTH },
			want:  KindReadFailed,
			sent:  2,
		},
		{
			name:  "unsupported card",
			setup: func(_ *pcsctest.Context, card *pcsctest.Card) { card.ATR = icATR },
			want:  KindUnsupportedCardType,
		},
		{
			name:  "unknown card",
			setup: func(_ *pcsctest.Context, card *pcsctest.Card) { card.ATR = []byte{0x3B, 0x00} },
			want:  KindUnsupportedCardType,
		},
		{
			name:  "answer to reset fails",
			setup: func(_ *pcsctest.Context, card *pcsctest.Card) { card.ATRErr = lost },
			want:  KindTransport,
		},
		{
			name:  "connect fails",
			setup: func(c *pcsctest.Context, _ *pcsctest.Card) { c.OpenErr = lost },
			want:  KindTransport,
		},
		{
			name:  "card lost mid read",
			setup: func(_ *pcsctest.Context, card *pcsctest.Card) { card.Replies = []pcsctest.Reply{{Data: []byte{0x90, 0x00}}, {Err: lost}} },
			want:  KindTransport,
			sent:  2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			card := pcsctest.NewMemoryCard(classicATR, 4, pcsctest.Pattern(256))
			c := pcsctest.NewContext(pcsctest.DefaultReader)
			c.Insert(card)
			tc.setup(c, card)
			rec := &recorder{}
			s := newTestSession(t, c, WithObserver(rec))

			data, err := s.ReadNDEFOnNextInsertion(context.Background())
			if data != nil {
				t.Errorf("returned %d bytes on failure", len(data))
			}
			if got := KindOf(err); got != tc.want {
				t.Errorf("KindOf(%v) = %s, want %s", err, got, tc.want)
			}
			if n := len(card.Sent()); n != tc.sent {
				t.Errorf("sent %d commands, want %d", n, tc.sent)
			}
			if c.OpenTransactions() != 0 {
				t.Error("transaction left open")
			}
			if len(rec.kinds) != 1 || rec.kinds[0] != tc.want {
				t.Errorf("observed kinds = %v", rec.kinds)
			}
		})
	}
}

func TestSession_ReadBlockAndRange(t *testing.T) {
	memory := pcsctest.Pattern(256)

	tests := []struct {
		name string
		opts []Option
		read func(s *Session) ([]byte, error)
		want []byte
	}{
		{
			name: "block window",
			read: func(s *Session) ([]byte, error) { return s.ReadBlock(context.Background(), 8) },
			want: memory[32:48],
		},
		{
			name: "wider block window",
			opts: []Option{WithBlockWindow(32)},
			read: func(s *Session) ([]byte, error) { return s.ReadBlock(context.Background(), 8) },
			want: memory[32:64],
		},
		{
			name: "range",
			read: func(s *Session) ([]byte, error) { return s.ReadRange(context.Background(), 0, 20) },
			want: memory[0:20],
		},
		{
			name: "custom ndef range",
			opts: []Option{WithNDEFRange(16, 48)},
			read: func(s *Session) ([]byte, error) { return s.ReadNDEFOnNextInsertion(context.Background()) },
			want: memory[64:112],
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := pcsctest.NewContext(pcsctest.DefaultReader)
			c.Insert(pcsctest.NewMemoryCard(classicATR, 4, memory))
			s := newTestSession(t, c, tc.opts...)

			got, err := tc.read(s)
			if err != nil {
				t.Fatalf("read error = %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSession_ReadRangeInvalidLength(t *testing.T) {
	c := pcsctest.NewContext(pcsctest.DefaultReader)
	s := newTestSession(t, c)

	if _, err := s.ReadRange(context.Background(), 4, 0); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("error = %v, want ErrInvalidParameter", err)
	}
	if diff := cmp.Diff([]string{"ListReaders"}, c.Calls()); diff != "" {
		t.Errorf("transport calls mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_ReadDataBlocksOnNextInsertion(t *testing.T) {
	memory := pcsctest.Pattern(1024)
	card := pcsctest.NewMemoryCard(classicATR, 16, memory)
	c := pcsctest.NewContext(pcsctest.DefaultReader)
	c.Insert(card)
	s := newTestSession(t, c)

	got, err := s.ReadDataBlocksOnNextInsertion(context.Background(), Classic1K)
	if err != nil {
		t.Fatalf("ReadDataBlocksOnNextInsertion() error = %v", err)
	}

	var want []byte
	for _, b := range Classic1K.DataBlocks() {
		want = append(want, memory[int(b)*16:int(b)*16+16]...)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}
	if n := len(card.Sent()); n != 2*47 {
		t.Errorf("sent %d commands, want %d", n, 2*47)
	}

	if _, err := s.ReadDataBlocksOnNextInsertion(context.Background(), SectorLayout{}); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("empty layout error = %v", err)
	}
}

func TestSession_WaitEnds(t *testing.T) {
	t.Run("bounded wait elapses", func(t *testing.T) {
		c := pcsctest.NewContext(pcsctest.DefaultReader)
		s := newTestSession(t, c, WithWaitTimeout(5*time.Millisecond))

		_, err := s.ReadNDEFOnNextInsertion(context.Background())
		if KindOf(err) != KindTimeout {
			t.Errorf("error = %v, want timeout", err)
		}
	})

	t.Run("caller gives up", func(t *testing.T) {
		c := pcsctest.NewContext(pcsctest.DefaultReader)
		s := newTestSession(t, c)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := s.ReadBlock(ctx, 4)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want context.DeadlineExceeded", err)
		}
	})
}

func TestSession_Listen(t *testing.T) {
	stopped := errors.New("service stopped")
	c := pcsctest.NewContext(pcsctest.DefaultReader)
	c.Insert(pcsctest.NewMemoryCard(classicATR, 4, nil))
	c.Remove()
	c.Fail(stopped)
	rec := &recorder{}
	s := newTestSession(t, c, WithObserver(rec))

	var got []Event
	err := s.Listen(context.Background(), func(_ context.Context, ev Event) error {
		got = append(got, ev)
		return nil
	})

	if !errors.Is(err, ErrTransport) || !errors.Is(err, stopped) {
		t.Fatalf("Listen() error = %v, want transport failure", err)
	}
	if len(got) != 2 || got[0].Edge != EdgeInserted || got[1].Edge != EdgeRemoved {
		t.Fatalf("events = %+v", got)
	}
	if got[0].ID != got[1].ID {
		t.Error("removal does not carry the insertion ID")
	}
	if diff := cmp.Diff([]string{OpListen}, rec.ops); diff != "" {
		t.Errorf("observed operations mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_ListenStops(t *testing.T) {
	t.Run("handler error", func(t *testing.T) {
		errStop := errors.New("stop")
		c := pcsctest.NewContext(pcsctest.DefaultReader)
		c.Insert(pcsctest.NewMemoryCard(classicATR, 4, nil))
		s := newTestSession(t, c)

		err := s.Listen(context.Background(), func(context.Context, Event) error { return errStop })
		if !errors.Is(err, errStop) {
			t.Errorf("Listen() error = %v", err)
		}
	})

	t.Run("canceled between bounded waits", func(t *testing.T) {
		c := pcsctest.NewContext(pcsctest.DefaultReader)
		c.Insert(pcsctest.NewMemoryCard(classicATR, 4, nil))
		s := newTestSession(t, c, WithWaitTimeout(time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		seen := 0
		err := s.Listen(ctx, func(context.Context, Event) error {
			seen++
			cancel()
			return nil
		})
		if !errors.Is(err, context.Canceled) || seen != 1 {
			t.Errorf("Listen() error = %v after %d events", err, seen)
		}
	})
}

func TestSession_Watch(t *testing.T) {
	c := pcsctest.NewContext(pcsctest.DefaultReader)
	c.Insert(pcsctest.NewMemoryCard(classicATR, 4, nil))
	c.Remove()
	s := newTestSession(t, c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, errc := s.Watch(ctx)

	var got []Edge
	for ev := range events {
		got = append(got, ev.Edge)
		if len(got) == 2 {
			cancel()
		}
	}

	if diff := cmp.Diff([]Edge{EdgeInserted, EdgeRemoved}, got); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Watch() error = %v, want context.Canceled", err)
	}
}
